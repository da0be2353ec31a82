package template

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const (
	recordExt = ".cbor"
	// featuresDir cannot collide with a template id, which has no dots.
	featuresDir = ".features"
)

var recordMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	if recordMode, err = opts.EncMode(); err != nil {
		panic(err)
	}
}

// FileStore writes each version to <dir>/<id>/<version>.cbor and prepared
// templates to <dir>/.features/<digest>.cbor. A record is
// written to a temporary file and renamed into place, so readers only ever
// see complete versions.
type FileStore struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("template dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now, locks: make(map[string]*sync.Mutex)}, nil
}

func (f *FileStore) lock(id string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.Mutex{}
		f.locks[id] = l
	}
	return l
}

func (f *FileStore) Put(ctx context.Context, id string, data []byte) (Snapshot, error) {
	if err := checkPut(id, data); err != nil {
		return Snapshot{}, err
	}
	l := f.lock(id)
	l.Lock()
	defer l.Unlock()
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	dir := filepath.Join(f.dir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("template dir: %w", err)
	}
	latest, err := f.latestVersion(id)
	if err != nil {
		return Snapshot{}, err
	}

	s := Snapshot{
		ID:      id,
		Version: latest + 1,
		Data:    append([]byte(nil), data...),
		Digest:  Digest(data),
		Created: f.now().UTC(),
	}
	record, err := recordMode.Marshal(s)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode template: %w", err)
	}

	if err := writeAtomic(dir, f.path(id, s.Version), record); err != nil {
		return Snapshot{}, fmt.Errorf("write template: %w", err)
	}
	return s.clone(), nil
}

func (f *FileStore) Latest(ctx context.Context, id string) (Snapshot, error) {
	if !ValidID(id) {
		return Snapshot{}, ErrInvalidID
	}
	v, err := f.latestVersion(id)
	if err != nil {
		return Snapshot{}, err
	}
	if v == 0 {
		return Snapshot{}, ErrNotFound
	}
	return f.Get(ctx, id, v)
}

func (f *FileStore) Get(ctx context.Context, id string, version uint64) (Snapshot, error) {
	if !ValidID(id) {
		return Snapshot{}, ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	raw, err := os.ReadFile(f.path(id, version))
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read template: %w", err)
	}
	var s Snapshot
	if err := cbor.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode template %s/%d: %w", id, version, err)
	}
	if s.ID != id || s.Version != version || Digest(s.Data) != s.Digest {
		return Snapshot{}, fmt.Errorf("%w: %s/%d", ErrCorrupt, id, version)
	}
	return s, nil
}

// SaveFeatures stores an encoded prepared template under the digest of the
// payload it was prepared from.
func (f *FileStore) SaveFeatures(digest string, data []byte) error {
	if !validDigest(digest) {
		return ErrInvalidDigest
	}
	dir := filepath.Join(f.dir, featuresDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("features dir: %w", err)
	}
	if err := writeAtomic(dir, filepath.Join(dir, digest+recordExt), data); err != nil {
		return fmt.Errorf("write features: %w", err)
	}
	return nil
}

func (f *FileStore) LoadFeatures(digest string) ([]byte, error) {
	if !validDigest(digest) {
		return nil, ErrInvalidDigest
	}
	data, err := os.ReadFile(filepath.Join(f.dir, featuresDir, digest+recordExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	return data, nil
}

// writeAtomic writes data to a temporary file in dir and renames it to
// path.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (f *FileStore) path(id string, version uint64) string {
	return filepath.Join(f.dir, id, strconv.FormatUint(version, 10)+recordExt)
}

// latestVersion scans the id's directory; 0 means no versions.
func (f *FileStore) latestVersion(id string) (uint64, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list templates: %w", err)
	}
	var latest uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, recordExt), 10, 64)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}
