package storage

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("storage: object not found")

// Archive stores immutable records for later reconciliation.
// Keys are slash-separated logical paths.
type Archive interface {
	// Put writes data at key, replacing any previous object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the object at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures the archive backend
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	LocalDir        string
}

// New returns an S3-compatible archive when a bucket is configured, otherwise a local directory
func New(cfg Config) (Archive, error) {
	if cfg.Bucket != "" {
		return NewS3Archive(cfg)
	}
	if cfg.LocalDir == "" {
		return nil, fmt.Errorf("storage config error: neither bucket nor local dir is set")
	}
	return NewLocalArchive(cfg.LocalDir)
}
