// Package blob stores artifact content. Keys are opaque slash-separated paths.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

type Info struct {
	Key          string
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// Store is the content backend. Put is create-only.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}

var (
	ErrNotFound = errors.New("blob not found")
	ErrExists   = errors.New("blob already exists")
)

type Config struct {
	Driver Driver
	Root   string
	S3     S3Config
}

// Open builds the store selected by cfg.Driver; fs is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
