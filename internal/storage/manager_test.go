// manager_test.go - Tests for the image store
package storage

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func pngBytes(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates image directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "images")

		if _, err := NewLocalStore(dir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("Expected image directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("records dimensions and format", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("plan.png", bytes.NewReader(pngBytes(t, 40, 30)))
		if err != nil {
			t.Fatalf("Failed to save image: %v", err)
		}
		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Width != 40 || info.Height != 30 {
			t.Errorf("Expected 40x30, got %dx%d", info.Width, info.Height)
		}
		if info.Format != "png" {
			t.Errorf("Expected format png, got %q", info.Format)
		}
	})

	t.Run("rejects non-images", func(t *testing.T) {
		store := createTestStore(t)

		_, err := store.Save("notes.txt", strings.NewReader("hello"))
		if !errors.Is(err, ErrInvalidImage) {
			t.Fatalf("Expected ErrInvalidImage, got %v", err)
		}
		entries, _ := os.ReadDir(store.imageDir)
		if len(entries) != 0 {
			t.Errorf("Expected rejected upload to be removed, found %d files", len(entries))
		}
	})
}

func TestLocalStore_ListAndDelete(t *testing.T) {
	store := createTestStore(t)

	first, _ := store.Save("a.png", bytes.NewReader(pngBytes(t, 1, 1)))
	second, _ := store.Save("b.png", bytes.NewReader(pngBytes(t, 2, 2)))

	list, err := store.List(10)
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 images, got %d", len(list))
	}

	list, _ = store.List(1)
	if len(list) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(list))
	}

	if err := store.Delete(first.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := store.Get(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := store.Get(second.ID); err != nil {
		t.Errorf("Expected second image to remain: %v", err)
	}
}

func TestLocalStore_Rename(t *testing.T) {
	store := createTestStore(t)
	info, _ := store.Save("a.png", bytes.NewReader(pngBytes(t, 1, 1)))

	renamed, err := store.Rename(info.ID, "floor.jpg")
	if err != nil {
		t.Fatalf("Failed to rename: %v", err)
	}
	if renamed.Name != "floor.jpg" {
		t.Errorf("Expected new name, got %q", renamed.Name)
	}

	// The stored file keeps its original extension.
	rc, err := store.Open(info.ID)
	if err != nil {
		t.Fatalf("Failed to open renamed image: %v", err)
	}
	rc.Close()
}

func TestLocalStore_Open(t *testing.T) {
	store := createTestStore(t)
	data := pngBytes(t, 3, 3)
	info, _ := store.Save("plan.png", bytes.NewReader(data))

	if err := os.WriteFile(filepath.Join(store.imageDir, "placed.png"), data, 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	for _, ref := range []string{info.ID, "plan.png", "placed.png", "/placed.png"} {
		t.Run(ref, func(t *testing.T) {
			rc, err := store.Open(ref)
			if err != nil {
				t.Fatalf("Failed to open %q: %v", ref, err)
			}
			defer rc.Close()
			got, _ := io.ReadAll(rc)
			if !bytes.Equal(got, data) {
				t.Error("Expected stored bytes")
			}
		})
	}

	for _, ref := range []string{"missing.png", "../escape.png"} {
		if _, err := store.Open(ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for %q, got %v", ref, err)
		}
	}
}
