package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nb-picture/backend/internal/models"
)

var (
	// ErrNotFound is returned for unknown image ids and references.
	ErrNotFound = errors.New("image not found")
	// ErrInvalidImage is returned when an upload is not a decodable image.
	ErrInvalidImage = errors.New("invalid image")
)

// Store defines the interface for base image storage.
type Store interface {
	Save(name string, r io.Reader) (*models.ImageInfo, error)
	Get(id string) (*models.ImageInfo, error)
	List(limit int) ([]*models.ImageInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.ImageInfo, error)
	// Open resolves a source reference: an image id, the name of a stored
	// image, or a file relative to the image directory.
	Open(ref string) (io.ReadCloser, error)
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu       sync.RWMutex
	imageDir string
	images   map[string]*models.ImageInfo
	paths    map[string]string
}

// NewLocalStore creates a new LocalStore.
func NewLocalStore(imageDir string) (*LocalStore, error) {
	if err := os.MkdirAll(imageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}

	return &LocalStore{
		imageDir: imageDir,
		images:   make(map[string]*models.ImageInfo),
		paths:    make(map[string]string),
	}, nil
}

// Save stores an image and records its decoded dimensions. Uploads that are
// not images are rejected.
func (s *LocalStore) Save(name string, r io.Reader) (*models.ImageInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.imageDir, id+strings.ToLower(filepath.Ext(name)))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("rewinding file: %w", err)
	}
	cfg, format, err := DecodeConfig(f)
	f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	info := &models.ImageInfo{
		ID:         id,
		Name:       name,
		Size:       size,
		Format:     format,
		Width:      cfg.Width,
		Height:     cfg.Height,
		UploadedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = info
	s.paths[id] = path

	return info, nil
}

// Get retrieves image metadata by ID.
func (s *LocalStore) Get(id string) (*models.ImageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, nil
}

// List returns the most recent images.
func (s *LocalStore) List(limit int) ([]*models.ImageInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.ImageInfo, 0, len(s.images))
	for _, info := range s.images {
		list = append(list, info)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].UploadedAt.After(list[j].UploadedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes an image from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.images[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := os.Remove(s.paths[info.ID]); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.images, id)
	delete(s.paths, id)
	return nil
}

// Rename updates the display name of an image.
func (s *LocalStore) Rename(id string, newName string) (*models.ImageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info.Name = newName
	return info, nil
}

// Open resolves ref to an image file and opens it.
func (s *LocalStore) Open(ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("opening image: %w", err)
	}
	return f, nil
}

func (s *LocalStore) resolve(ref string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if path, ok := s.paths[ref]; ok {
		return path, nil
	}

	var newest *models.ImageInfo
	for _, info := range s.images {
		if info.Name == ref && (newest == nil || info.UploadedAt.After(newest.UploadedAt)) {
			newest = info
		}
	}
	if newest != nil {
		return s.paths[newest.ID], nil
	}

	rel := filepath.FromSlash(strings.TrimPrefix(ref, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return filepath.Join(s.imageDir, rel), nil
}
