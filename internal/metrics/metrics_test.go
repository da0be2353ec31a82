package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/internal/decision"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

func TestObserve(t *testing.T) {
	r := NewRecorder()

	r.Observe(verify.Outcome{
		Result: decision.Decide(62),
		Stats:  verify.Stats{VerifiedMatches: 40, Total: 20 * time.Millisecond, TemplateCached: true},
	})
	r.Observe(verify.Outcome{
		Result: decision.Decide(3),
		Stats:  verify.Stats{VerifiedMatches: 2, Total: 10 * time.Millisecond},
	})
	r.Observe(verify.Outcome{
		Result: decision.Reject(),
		Err:    &verify.Error{Kind: verify.KindInsufficientFeatures, Op: "extract sample", Err: errors.New("none")},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.verifications.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verifications.WithLabelValues("insufficient_features")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.matches))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.templates.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.templates.WithLabelValues("miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.scores))
}

func TestHandler(t *testing.T) {
	r := NewRecorder()
	r.Observe(verify.Outcome{Result: decision.Decide(55)})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `fingerprint_verifications_total{outcome="ok"} 1`))
	assert.Contains(t, string(body), "fingerprint_match_score_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.Observe(verify.Outcome{Result: decision.Decide(10)})
	assert.Equal(t, 0.0, testutil.ToFloat64(b.verifications.WithLabelValues("ok")))
}
