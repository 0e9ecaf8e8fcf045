// Package storage archives opaque blobs (raw webhook bodies) to a local
// directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrInvalidKey = errors.New("storage: invalid key")

type PutInput struct {
	Key         string // slash separated, relative
	ContentType string
	Size        int64
}

type PutResult struct {
	Key string
	URL string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
}

// cleanKey rejects absolute keys and any attempt to climb out of the root.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidKey
	}
	return c, nil
}

// Nop discards everything; used when archiving is disabled.
type Nop struct{}

func (Nop) Put(_ context.Context, r io.Reader, in PutInput) (PutResult, error) {
	_, _ = io.Copy(io.Discard, r)
	return PutResult{Key: in.Key}, nil
}

func (Nop) String() string { return "none" }
