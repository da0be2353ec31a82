package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-horse/fingerprint-server/internal/config"
)

func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Log{Dir: dir, Pattern: "fp.%Y%m%d.log", MaxAge: time.Hour, RotationTime: time.Hour, File: true}

	w, c, err := New(cfg)
	require.NoError(t, err)
	_, err = fmt.Fprintln(w, "verify sample: score=42.00")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "fp.*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "score=42.00"))
}

func TestDisabledOutputs(t *testing.T) {
	w, c, err := New(config.Log{})
	require.NoError(t, err)
	assert.Equal(t, io.Discard, w)
	assert.NoError(t, c.Close())
}
