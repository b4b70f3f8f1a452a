package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newLocalForTest(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8080/files",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLocalStorage_PutGetRoundtrip(t *testing.T) {
	s := newLocalForTest(t)
	ctx := context.Background()
	key := "artifacts/anon-abc/doc.pdf"

	err := s.Put(ctx, key, strings.NewReader("%PDF-1.4 content"), PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatal(err)
	}

	rc, info, err := s.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4 content" {
		t.Errorf("unexpected content %q", data)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("size mismatch: info=%d read=%d", info.Size, len(data))
	}
	if info.ContentType != "application/pdf" {
		t.Errorf("unexpected content type %q", info.ContentType)
	}
}

func TestLocalStorage_PutRejectsOversized(t *testing.T) {
	s := newLocalForTest(t)
	key := "artifacts/anon-abc/big.jpg"

	err := s.Put(context.Background(), key, strings.NewReader("0123456789"), PutOptions{MaxSize: 5})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	// The partial upload must not be left behind.
	exists, err := s.Exists(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("oversized upload must not leave a file")
	}
}

func TestLocalStorage_PutRefusesOverwrite(t *testing.T) {
	s := newLocalForTest(t)
	ctx := context.Background()
	key := "artifacts/anon-abc/photo.jpg"

	if err := s.Put(ctx, key, strings.NewReader("first"), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	err := s.Put(ctx, key, strings.NewReader("second"), PutOptions{})
	if !errors.Is(err, ErrKeyExists) {
		t.Errorf("expected ErrKeyExists, got %v", err)
	}

	if err := s.Put(ctx, key, strings.NewReader("second"), PutOptions{Overwrite: true}); err != nil {
		t.Errorf("overwrite enabled should succeed, got %v", err)
	}
}

func TestLocalStorage_RejectsTraversalKeys(t *testing.T) {
	s := newLocalForTest(t)

	for _, key := range []string{"", "../etc/passwd", "artifacts/../../secret"} {
		err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestLocalStorage_DeleteIdempotent(t *testing.T) {
	s := newLocalForTest(t)

	if err := s.Delete(context.Background(), "artifacts/anon-abc/never-stored.png"); err != nil {
		t.Errorf("deleting a missing key should not fail, got %v", err)
	}
}

func TestLocalStorage_GetMissing(t *testing.T) {
	s := newLocalForTest(t)

	_, _, err := s.Get(context.Background(), "artifacts/anon-abc/missing.jpg")
	if !IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestDetectContentType_GenealogyFormats(t *testing.T) {
	tests := []struct {
		name     string
		provided string
		filename string
		want     string
	}{
		{"provided wins", "image/png", "export.ged", "image/png"},
		{"gedcom extension", "", "family/export.ged", "text/x-gedcom"},
		{"gedcom long extension", "", "export.gedcom", "text/x-gedcom"},
		{"heic extension", "", "scan.heic", "image/heic"},
		{"unknown falls back", "", "mystery.zzz", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.provided, tt.filename, nil); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectContentType_SniffsData(t *testing.T) {
	got := DetectContentType("", "noext", strings.NewReader("\x89PNG\r\n\x1a\n rest of header"))
	if got != "image/png" {
		t.Errorf("expected sniffed image/png, got %q", got)
	}
}

func TestIsImage(t *testing.T) {
	if !IsImage("image/jpeg; charset=binary") {
		t.Error("parameterized image type should count as an image")
	}
	if IsImage("application/pdf") {
		t.Error("pdf is not an image")
	}
}
