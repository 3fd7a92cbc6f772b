package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/andresuchdata/hydra-workflows/internal/testsupport"
)

func TestUploadDirectory(t *testing.T) {
	root := testsupport.WriteTree(t, t.TempDir(), "a.jpg", "day2/b.jpg", "day2/meta/c.json")
	store := testsupport.NewMemoryStore()

	keys, err := storage.UploadDirectory(context.Background(), store, root, "raw", "/flights/")
	if err != nil {
		t.Fatalf("UploadDirectory returned error: %v", err)
	}
	want := []string{"flights/a.jpg", "flights/day2/b.jpg", "flights/day2/meta/c.json"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("unexpected keys %v", keys)
	}
	if data, ok := store.Object("raw", "flights/day2/b.jpg"); !ok || string(data) != "day2/b.jpg" {
		t.Fatalf("unexpected object content %q", data)
	}
}

func TestUploadDirectoryStopsOnFailure(t *testing.T) {
	root := testsupport.WriteTree(t, t.TempDir(), "a.jpg", "b.jpg")
	store := testsupport.NewMemoryStore("raw")
	boom := errors.New("disk quota")
	store.FailUpload = func(_, key string) error {
		if key == "b.jpg" {
			return boom
		}
		return nil
	}

	keys, err := storage.UploadDirectory(context.Background(), store, root, "raw", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected upload error, got %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a.jpg"}) {
		t.Fatalf("expected only a.jpg uploaded, got %v", keys)
	}
}

func TestDetectContentType(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "cameras.json")
	testsupport.WriteContent(t, jsonPath, []byte(`{"camera":"dji"}`))
	if got := storage.DetectContentType(jsonPath); got != "application/json" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := storage.DetectContentType(filepath.Join(dir, "missing")); got != "application/octet-stream" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
