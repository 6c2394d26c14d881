package r2client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
)

// memStore is an in-memory object store with R2's conditional-write semantics.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	etags   map[string]string
	types   map[string]string
	seq     int
	failAll error
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		etags:   make(map[string]string),
		types:   make(map[string]string),
	}
}

func (m *memStore) put(key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.seq++
	etag := "etag-" + strconv.Itoa(m.seq)
	m.objects[key] = data
	m.etags[key] = etag
	m.types[key] = contentType
	return etag, nil
}

func (m *memStore) Upload(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return "", m.failAll
	}
	return m.put(key, body, contentType)
}

func (m *memStore) Download(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, "", m.failAll
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), m.etags[key], nil
}

func (m *memStore) PutObjectIfNotExists(_ context.Context, key string, body io.Reader, contentType string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, "", m.failAll
	}
	if _, ok := m.objects[key]; ok {
		return false, "", nil
	}
	etag, err := m.put(key, body, contentType)
	return err == nil, etag, err
}

func (m *memStore) PutObjectIfMatch(_ context.Context, key string, body io.Reader, etag string, contentType string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return false, "", m.failAll
	}
	if m.etags[key] != etag {
		return false, "", nil
	}
	newEtag, err := m.put(key, body, contentType)
	return err == nil, newEtag, err
}

func (m *memStore) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	delete(m.objects, key)
	delete(m.etags, key)
	return nil
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

var errUnavailable = errors.New("r2 unavailable")
