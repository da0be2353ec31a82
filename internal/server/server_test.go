package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/internal/config"
	"github.com/high-horse/fingerprint-server/internal/decision"
	"github.com/high-horse/fingerprint-server/internal/imaging/imagingtest"
	"github.com/high-horse/fingerprint-server/internal/metrics"
	"github.com/high-horse/fingerprint-server/internal/template"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

type fakeVerifier struct {
	mu        sync.Mutex
	calls     int
	templates [][]byte
	requests  []string
	outcome   verify.Outcome
}

func (f *fakeVerifier) VerifyBytes(ctx context.Context, _, tmpl []byte) verify.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.templates = append(f.templates, tmpl)
	f.requests = append(f.requests, verify.RequestID(ctx))
	return f.outcome
}

func newTestServer(t *testing.T, v Verifier) (*Server, template.Store) {
	t.Helper()
	store := template.NewMemoryStore()
	cfg := config.Default().Server
	return New(v, store, Options{Config: cfg, LogOutput: io.Discard}), store
}

func post(t *testing.T, s *Server, body any) (*http.Response, map[string]any) {
	t.Helper()
	return postWithID(t, s, body, "")
}

func postWithID(t *testing.T, s *Server, body any, requestID string) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/verify/fingerprint", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set(fiber.HeaderXRequestID, requestID)
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func b64(data []byte) string { return base64.StdEncoding.EncodeToString(data) }

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeVerifier{})
	for _, path := range []string{"/", "/verify/fingerprint"} {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var out StatusResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, statusSuccess, out.Status)
	}
}

func TestMissingSample(t *testing.T) {
	v := &fakeVerifier{}
	s, _ := newTestServer(t, v)
	resp, out := post(t, s, VerifyRequest{Stored: b64([]byte("x"))})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "error", "message": msgMissingData, "match_score": 0.0}, out)
	assert.Zero(t, v.calls)
}

func TestMalformedBody(t *testing.T) {
	s, _ := newTestServer(t, &fakeVerifier{})
	req := httptest.NewRequest(http.MethodPost, "/verify/fingerprint", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStoredBecomesTemplate(t *testing.T) {
	v := &fakeVerifier{outcome: verify.Outcome{Result: decision.Decide(45)}}
	s, store := newTestServer(t, v)

	resp, out := post(t, s, VerifyRequest{Sample: b64([]byte("sample")), Stored: b64([]byte("first")), TemplateID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", out["status"])
	assert.Equal(t, msgCompleted, out["message"])
	assert.Equal(t, 45.0, out["match_score"])
	assert.Equal(t, 20.0, out["threshold"])
	assert.Equal(t, true, out["match_result"])
	assert.Equal(t, "medium", out["confidence_level"])
	assert.Equal(t, "alice", out["template_id"])
	assert.Equal(t, 1.0, out["template_version"])
	assert.NotContains(t, out, "failure")

	// Without stored, the latest version is reused.
	resp, out = post(t, s, VerifyRequest{Sample: b64([]byte("sample")), TemplateID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, out["template_version"])
	require.Len(t, v.templates, 2)
	assert.Equal(t, []byte("first"), v.templates[1])

	snap, err := store.Latest(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), snap.Data)
}

func TestNoStoredTemplate(t *testing.T) {
	v := &fakeVerifier{}
	s, _ := newTestServer(t, v)
	resp, out := post(t, s, VerifyRequest{Sample: b64([]byte("sample"))})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "error", out["status"])
	assert.Contains(t, out["message"], template.DefaultID)
	assert.Zero(t, v.calls)
}

func TestPayloadErrors(t *testing.T) {
	s, _ := newTestServer(t, &fakeVerifier{})

	resp, out := post(t, s, VerifyRequest{Sample: "data:image/webp;base64," + b64([]byte("x")), Stored: b64([]byte("y"))})
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Contains(t, out["message"], "Unsupported image type")

	resp, _ = post(t, s, VerifyRequest{Sample: "%%%", Stored: b64([]byte("y"))})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = post(t, s, VerifyRequest{Sample: b64([]byte("x")), Stored: "data:image/png;base64"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["message"], "Invalid stored fingerprint data")

	resp, _ = post(t, s, VerifyRequest{Sample: b64([]byte("x")), TemplateID: "../../etc"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecodePayload(t *testing.T) {
	data, err := decodePayload("data:image/PNG;base64," + b64([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	data, err = decodePayload("  " + b64([]byte("raw")) + "\n")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)

	for _, mime := range acceptedMimes {
		assert.True(t, acceptedMime("data:"+mime+";base64"))
	}
	assert.False(t, acceptedMime("data:text/plain;base64"))
}

func TestDegradedOutcome(t *testing.T) {
	v := &fakeVerifier{outcome: verify.Outcome{
		Result: decision.Reject(),
		Err:    &verify.Error{Kind: verify.KindInsufficientFeatures, Op: "extract sample", Err: errors.New("no keypoints")},
	}}
	s, _ := newTestServer(t, v)
	resp, out := post(t, s, VerifyRequest{Sample: b64([]byte("s")), Stored: b64([]byte("t"))})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.0, out["match_score"])
	assert.Equal(t, false, out["match_result"])
	assert.Equal(t, "low", out["confidence_level"])
	assert.Equal(t, "insufficient_features", out["failure"])
	assert.Contains(t, out["message"], "Verification failed")
}

func TestRequestIDs(t *testing.T) {
	v := &fakeVerifier{outcome: verify.Outcome{Result: decision.Decide(10)}}
	s, _ := newTestServer(t, v)
	body := VerifyRequest{Sample: b64([]byte("s")), Stored: b64([]byte("t"))}

	resp, out := post(t, s, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	header := resp.Header.Get(fiber.HeaderXRequestID)
	_, err := uuid.Parse(header)
	require.NoError(t, err, "generated ids are uuids")
	assert.Equal(t, header, out["request_id"])

	_, out = post(t, s, body)
	assert.NotEqual(t, header, out["request_id"], "every request gets its own id")

	_, out = postWithID(t, s, body, "client-42")
	assert.Equal(t, "client-42", out["request_id"])

	_, out = postWithID(t, s, body, "../../etc")
	_, err = uuid.Parse(out["request_id"].(string))
	assert.NoError(t, err, "ids unfit for snapshot keys are replaced")

	require.Len(t, v.requests, 4)
	assert.Equal(t, header, v.requests[0])
	assert.Equal(t, "client-42", v.requests[2])
	assert.Equal(t, out["request_id"], v.requests[3])
}

func TestEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imagingtest.Ridges(192, 192, 31)))
	img := "data:image/png;base64," + b64(buf.Bytes())

	rec := metrics.NewRecorder()
	opts := verify.DefaultOptions()
	opts.Quiet = true
	opts.Observer = rec
	store := template.NewMemoryStore()
	s := New(verify.New(opts), store, Options{Config: config.Default().Server, LogOutput: io.Discard, Metrics: rec.Handler()})

	resp, out := post(t, s, VerifyRequest{Sample: img, Stored: img})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, out["match_result"])
	assert.Equal(t, "high", out["confidence_level"])
	assert.Greater(t, out["match_score"], 50.0)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fingerprint_verifications_total{outcome="ok"} 1`)
}
