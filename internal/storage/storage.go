// Package storage keeps uploaded images in a pebble database.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/teris-io/shortid"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrTooLarge        = errors.New("storage: file too large")
	ErrUnsupportedType = errors.New("storage: unsupported file type")
	ErrEmpty           = errors.New("storage: empty file")
	ErrNotFound        = errors.New("storage: file not found")
)

var allowedTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

type Blob struct {
	Name        string    `json:"name"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlobStore struct {
	db       *pebble.DB
	maxBytes int64
}

func Open(path string, maxBytes int64) (*BlobStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return &BlobStore{db: db, maxBytes: maxBytes}, nil
}

func (s *BlobStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *BlobStore) MaxBytes() int64 {
	return s.maxBytes
}

// Validate checks an upload before anything is written and returns its
// detected content type.
func (s *BlobStore) Validate(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}

	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}

	ct := http.DetectContentType(data)
	if _, ok := allowedTypes[ct]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}

	return ct, nil
}

// Put reads an upload from r, validates it and stores it under a new
// unique name derived from filename.
func (s *BlobStore) Put(owner, filename string, r io.Reader) (Blob, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Blob{}, fmt.Errorf("read upload: %w", err)
	}

	ct, err := s.Validate(data)
	if err != nil {
		return Blob{}, err
	}

	id, err := shortid.Generate()
	if err != nil {
		return Blob{}, fmt.Errorf("generate name: %w", err)
	}

	blob := Blob{
		Name:        id + "-" + cleanName(filename),
		Filename:    filename,
		ContentType: ct,
		Size:        int64(len(data)),
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
	}

	meta, err := json.Marshal(blob)
	if err != nil {
		return Blob{}, err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set(metaKey(blob.Name), meta, nil); err != nil {
		return Blob{}, err
	}
	if err := b.Set(dataKey(blob.Name), data, nil); err != nil {
		return Blob{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return Blob{}, fmt.Errorf("write blob: %w", err)
	}

	return blob, nil
}

func (s *BlobStore) Stat(name string) (Blob, error) {
	raw, err := s.get(metaKey(name))
	if err != nil {
		return Blob{}, err
	}

	var blob Blob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Blob{}, fmt.Errorf("decode blob meta: %w", err)
	}

	return blob, nil
}

func (s *BlobStore) Get(name string) (Blob, []byte, error) {
	blob, err := s.Stat(name)
	if err != nil {
		return Blob{}, nil, err
	}

	data, err := s.get(dataKey(name))
	if err != nil {
		return Blob{}, nil, err
	}

	return blob, data, nil
}

func (s *BlobStore) Delete(name string) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Delete(metaKey(name), nil); err != nil {
		return err
	}
	if err := b.Delete(dataKey(name), nil); err != nil {
		return err
	}

	return b.Commit(pebble.Sync)
}

func (s *BlobStore) get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return bytes.Clone(v), nil
}

func metaKey(name string) []byte { return []byte("meta:" + name) }
func dataKey(name string) []byte { return []byte("blob:" + name) }

func cleanName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		return "upload"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
}
