package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory garde les objets en RAM (STORAGE_DRIVER=memory et tests).
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	meta Object
	data []byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) Upload(_ context.Context, obj Object, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	obj.Size = int64(len(data))
	m.mu.Lock()
	m.objects[obj.Bucket+"/"+obj.Key] = memObject{meta: obj, data: data}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Open(_ context.Context, bucket, key string) (io.ReadCloser, Object, error) {
	m.mu.RLock()
	o, ok := m.objects[bucket+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return nil, Object{}, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), o.meta, nil
}

func (m *Memory) Remove(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	delete(m.objects, bucket+"/"+key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if !m.Exists(bucket, key) {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", bucket, key, time.Now().Add(ttl).Unix()), nil
}

func (m *Memory) PublicURL(bucket, key string) string {
	return "memory://" + bucket + "/" + key
}

func (m *Memory) Exists(bucket, key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[bucket+"/"+key]
	return ok
}
