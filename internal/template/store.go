// Package template keeps versioned, immutable snapshots of enrolled
// template images so every verification compares against one complete
// version.
package template

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"time"
)

// DefaultID is the key used when a request names no template.
const DefaultID = "default"

var (
	ErrNotFound      = errors.New("template: not found")
	ErrInvalidID     = errors.New("template: invalid id")
	ErrInvalidDigest = errors.New("template: invalid digest")
	ErrEmpty         = errors.New("template: empty image")
	ErrCorrupt       = errors.New("template: digest mismatch")
)

var (
	idPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Snapshot is one stored version of a template. Data is never shared with
// the store.
type Snapshot struct {
	ID      string    `cbor:"1,keyasint"`
	Version uint64    `cbor:"2,keyasint"`
	Data    []byte    `cbor:"3,keyasint"`
	Digest  string    `cbor:"4,keyasint"`
	Created time.Time `cbor:"5,keyasint"`
}

// Store persists template versions. Versions of one id start at 1 and
// increase by one per Put.
type Store interface {
	Put(ctx context.Context, id string, data []byte) (Snapshot, error)
	Latest(ctx context.Context, id string) (Snapshot, error)
	Get(ctx context.Context, id string, version uint64) (Snapshot, error)
}

// ValidID reports whether id may name a template.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func validDigest(d string) bool {
	return digestPattern.MatchString(d)
}

// Digest is the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s Snapshot) clone() Snapshot {
	s.Data = append([]byte(nil), s.Data...)
	return s
}

func checkPut(id string, data []byte) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	if len(data) == 0 {
		return ErrEmpty
	}
	return nil
}
