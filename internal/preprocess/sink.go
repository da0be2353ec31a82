package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sink receives intermediate images for inspection. Accepts is consulted
// before a snapshot is encoded, so a sink that declines costs nothing.
type Sink interface {
	Accepts(key string) bool
	Accept(key, mime string, data []byte) error
}

// NopSink declines everything.
type NopSink struct{}

func (NopSink) Accepts(string) bool                 { return false }
func (NopSink) Accept(string, string, []byte) error { return nil }

// DirSink writes every snapshot to Dir as <key>_<timestamp>.<ext>, with the
// key's slashes flattened to underscores. Keys carry the request id when the
// pipeline runs for a request, which keeps concurrent requests apart.
type DirSink struct {
	Dir string
	Now func() time.Time
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("debug dir: %w", err)
	}
	return &DirSink{Dir: dir, Now: time.Now}, nil
}

func (s *DirSink) Accepts(string) bool { return s != nil && s.Dir != "" }

func (s *DirSink) Accept(key, mime string, data []byte) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	name := fmt.Sprintf("%s_%s.%s",
		strings.ReplaceAll(key, "/", "_"),
		now().Format("20060102_150405.000000"),
		extension(mime))
	return os.WriteFile(filepath.Join(s.Dir, name), data, 0o644)
}

func extension(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	}
	return "bin"
}

// Snapshot is one image captured by a MemorySink.
type Snapshot struct {
	Key  string
	Mime string
	Data []byte
}

// MemorySink keeps copies of the snapshots whose key passes Filter (all of
// them when Filter is nil).
type MemorySink struct {
	Filter func(key string) bool

	mu    sync.Mutex
	items []Snapshot
}

func (s *MemorySink) Accepts(key string) bool {
	return s.Filter == nil || s.Filter(key)
}

func (s *MemorySink) Accept(key, mime string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	s.items = append(s.items, Snapshot{Key: key, Mime: mime, Data: cp})
	s.mu.Unlock()
	return nil
}

// Snapshots returns the captured images in arrival order.
func (s *MemorySink) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.items))
	copy(out, s.items)
	return out
}

// Keys lists the captured keys in arrival order.
func (s *MemorySink) Keys() []string {
	snaps := s.Snapshots()
	keys := make([]string, len(snaps))
	for i, sn := range snaps {
		keys[i] = sn.Key
	}
	return keys
}
