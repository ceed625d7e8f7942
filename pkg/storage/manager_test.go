package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func hashOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func TestSaveAndLoad(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	body := []byte("<html><body>Cojum Dip</body></html>")
	hash := hashOf(body)

	path, err := m.Save(hash, body)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(filepath.Dir(path)) != hash[:2] {
		t.Errorf("path %q not sharded by hash prefix", path)
	}
	if !m.Has(hash) {
		t.Error("Has = false after Save")
	}

	got, err := m.Load(hash)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(body) {
		t.Errorf("loaded %q, want %q", got, body)
	}
}

func TestSaveDuplicateIsNoOp(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	body := []byte("same content")
	hash := hashOf(body)

	first, err := m.Save(hash, body)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Save(hash, body)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}
}

func TestScanExisting(t *testing.T) {
	dir := t.TempDir()

	body := []byte("previously stored")
	hash := hashOf(body)
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Save(hash, body); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same directory sees the stored page.
	reopened, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Has(hash) {
		t.Error("reopened manager lost stored page")
	}
	if reopened.Count() != 1 {
		t.Errorf("count = %d, want 1", reopened.Count())
	}
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	body := []byte("body")
	hash := hashOf(body)
	if _, err := m.Save(hash, body); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, hash[:2]))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestMalformedHash(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Save("x", []byte("body")); err == nil {
		t.Error("expected error for malformed hash")
	}
	if _, err := m.Load(""); err == nil {
		t.Error("expected error for empty hash")
	}
}
