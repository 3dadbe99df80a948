// mock_store.go - In-memory image store for testing
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/nb-picture/backend/internal/models"
	"github.com/nb-picture/backend/internal/storage"
)

// MockStore implements storage.Store in memory
type MockStore struct {
	mu     sync.RWMutex
	images map[string]*models.ImageInfo
	data   map[string][]byte
	next   int
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		images: make(map[string]*models.ImageInfo),
		data:   make(map[string][]byte),
	}
}

func (m *MockStore) Save(name string, r io.Reader) (*models.ImageInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg, format, err := storage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidImage, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	info := &models.ImageInfo{
		ID:         fmt.Sprintf("test-image-%d", m.next),
		Name:       name,
		Size:       int64(len(data)),
		Format:     format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		UploadedAt: time.Now(),
	}
	m.images[info.ID] = info
	m.data[info.ID] = data
	return info, nil
}

func (m *MockStore) Get(id string) (*models.ImageInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return info, nil
}

func (m *MockStore) List(limit int) ([]*models.ImageInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*models.ImageInfo
	for _, info := range m.images {
		list = append(list, info)
		if limit > 0 && len(list) >= limit {
			break
		}
	}
	return list, nil
}

func (m *MockStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.images[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	delete(m.images, id)
	delete(m.data, id)
	return nil
}

func (m *MockStore) Rename(id string, newName string) (*models.ImageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	info.Name = newName
	return info, nil
}

// Open resolves ids first, then stored names
func (m *MockStore) Open(ref string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.data[ref]; ok {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	for id, info := range m.images {
		if info.Name == ref {
			return io.NopCloser(bytes.NewReader(m.data[id])), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
}

// Ensure MockStore implements storage.Store
var _ storage.Store = (*MockStore)(nil)

// Test Helper Methods

// AddImage stores a generated PNG of the given size under name
func (m *MockStore) AddImage(name string, width, height int) *models.ImageInfo {
	info, err := m.Save(name, bytes.NewReader(PNG(width, height)))
	if err != nil {
		panic(fmt.Sprintf("failed to add test image: %v", err))
	}
	return info
}

// AddRaw stores bytes without validating them
func (m *MockStore) AddRaw(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	id := fmt.Sprintf("test-image-%d", m.next)
	m.images[id] = &models.ImageInfo{ID: id, Name: name, Size: int64(len(data)), UploadedAt: time.Now()}
	m.data[id] = data
}

// Count returns the number of stored images
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.images)
}

// PNG encodes a solid image of the given size
func PNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(fmt.Sprintf("failed to encode test image: %v", err))
	}
	return buf.Bytes()
}
