package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"
)

type memObject struct {
	data []byte
	info Info
}

// Memory is an in-process Store for tests and throwaway servers.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memObject{}}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if _, err := sanitizeKey(key); err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return Info{}, fmt.Errorf("%w: %s", ErrExists, key)
	}
	sum := sha256.Sum256(data)
	info := Info{Key: key, Size: int64(len(data)), ContentType: opts.ContentType, ETag: hex.EncodeToString(sum[:]), LastModified: time.Now().UTC()}
	m.objects[key] = memObject{data: data, info: info}
	return info, nil
}

func (m *Memory) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Info{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return obj.info, io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *Memory) Head(ctx context.Context, key string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return obj.info, nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}
