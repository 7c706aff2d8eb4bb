package assets

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestFSStoreOpensAsset(t *testing.T) {
	store := NewFSStore(fstest.MapFS{
		"labels.txt": &fstest.MapFile{Data: []byte("nevus\nmelanoma\n")},
	})

	for _, name := range []string{"labels.txt", "/labels.txt"} {
		rc, err := store.Open(name)
		if err != nil {
			t.Fatalf("open %q: %v", name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %q: %v", name, err)
		}
		if string(data) != "nevus\nmelanoma\n" {
			t.Fatalf("unexpected contents for %q: %q", name, data)
		}
	}
}

func TestFSStoreMissingAssetIsNotFound(t *testing.T) {
	store := NewFSStore(fstest.MapFS{
		"models/model.onnx": &fstest.MapFile{Data: []byte("x")},
	})

	for _, name := range []string{"missing.txt", "../etc/passwd", "models"} {
		_, err := store.Open(name)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for %q, got %v", name, err)
		}
	}
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("blob"), 0o600); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	store := NewDirStore(dir)
	rc, err := store.Open("model.onnx")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()

	if _, err := store.Open("labels.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
