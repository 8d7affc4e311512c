package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Filesystem maps keys to files under root with a ".meta" JSON sidecar
// holding content type and digest.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key contains '..'")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key")
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (s *Filesystem) paths(key string) (string, string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	data := filepath.Join(s.root, filepath.FromSlash(k))
	return data, data + ".meta", nil
}

type sidecar struct {
	ContentType string    `json:"content_type,omitempty"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Filesystem) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrExists, key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, err
	}
	meta := sidecar{ContentType: opts.ContentType, ETag: hex.EncodeToString(h.Sum(nil)), Size: size, CreatedAt: time.Now().UTC()}
	payload, err := json.Marshal(meta)
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(metaPath, payload, 0o644); err != nil {
		return Info{}, err
	}
	return meta.info(key), nil
}

func (m sidecar) info(key string) Info {
	return Info{Key: key, Size: m.Size, ContentType: m.ContentType, ETag: m.ETag, LastModified: m.CreatedAt}
}

func (s *Filesystem) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	dataPath, _, _ := s.paths(key)
	f, err := os.Open(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Info{}, nil, err
	}
	return info, f, nil
}

func (s *Filesystem) Head(ctx context.Context, key string) (Info, error) {
	_, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	payload, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Info{}, err
	}
	var meta sidecar
	if err := json.Unmarshal(payload, &meta); err != nil {
		return Info{}, fmt.Errorf("read blob metadata: %w", err)
	}
	return meta.info(key), nil
}

func (s *Filesystem) Delete(ctx context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(dataPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}
