package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "evidence")

	fs, err := New(dir, 0)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("директория не создана: %v", err)
	}
}

// TestSaveFile_ChecksumAndRead проверяет подсчёт SHA-256 и чтение файла.
func TestSaveFile_ChecksumAndRead(t *testing.T) {
	fs, _ := New(t.TempDir(), 1024)
	data := []byte("CCTV Footage - 11:45 PM")

	res, err := fs.SaveFile(bytes.NewReader(data), "3f2a9c1e-0000-4000-8000-000000000001", "cctv footage.mp4")
	if err != nil {
		t.Fatalf("SaveFile() ошибка: %v", err)
	}

	sum := sha256.Sum256(data)
	if res.Checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Checksum = %s, хотели %s", res.Checksum, hex.EncodeToString(sum[:]))
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, хотели %d", res.Size, len(data))
	}
	if !strings.HasPrefix(res.StoragePath, "3f/3f2a9c1e-0000-4000-8000-000000000001/cctvfootage_") {
		t.Errorf("StoragePath = %q, неожиданный формат", res.StoragePath)
	}
	if !strings.HasSuffix(res.StoragePath, ".mp4") {
		t.Errorf("StoragePath = %q, потеряно расширение", res.StoragePath)
	}

	f, err := fs.ReadFile(res.StoragePath)
	if err != nil {
		t.Fatalf("ReadFile() ошибка: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if !bytes.Equal(got, data) {
		t.Errorf("прочитано %q, хотели %q", got, data)
	}
}

// TestSaveFile_TooLarge проверяет ограничение размера и удаление temp файла.
func TestSaveFile_TooLarge(t *testing.T) {
	dir := t.TempDir()
	fs, _ := New(dir, 8)

	_, err := fs.SaveFile(strings.NewReader("0123456789"), "ev-1", "big.bin")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("SaveFile() = %v, хотели ErrTooLarge", err)
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "ev", "ev-1"))
	if len(entries) != 0 {
		t.Errorf("после ошибки в каталоге осталось %d файлов", len(entries))
	}
}

// TestDeleteFile проверяет удаление и идемпотентность.
func TestDeleteFile(t *testing.T) {
	fs, _ := New(t.TempDir(), 0)
	res, err := fs.SaveFile(strings.NewReader("mask"), "ev-2", "mask_photo.jpg")
	if err != nil {
		t.Fatalf("SaveFile() ошибка: %v", err)
	}

	if err := fs.DeleteFile(res.StoragePath); err != nil {
		t.Fatalf("DeleteFile() ошибка: %v", err)
	}
	if err := fs.DeleteFile(res.StoragePath); err != nil {
		t.Errorf("повторный DeleteFile() ошибка: %v", err)
	}
	if _, err := fs.ReadFile(res.StoragePath); !errors.Is(err, ErrNotExist) {
		t.Errorf("ReadFile(удалённого) = %v, хотели ErrNotExist", err)
	}
}

// TestResolve_RejectsTraversal проверяет защиту от выхода за dataDir.
func TestResolve_RejectsTraversal(t *testing.T) {
	fs, _ := New(t.TempDir(), 0)
	for _, p := range []string{"../etc/passwd", "/etc/passwd", ".."} {
		if _, err := fs.ReadFile(p); err == nil || errors.Is(err, ErrNotExist) {
			t.Errorf("ReadFile(%q) = %v, хотели ошибку недопустимого пути", p, err)
		}
	}
}

// TestSanitize проверяет очистку имени файла.
func TestSanitize(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"crowbar_photo", "crowbar_photo"},
		{"../../evil", "evil"},
		{"фото", "file"},
		{"", "file"},
		{"a b-c", "ab-c"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.input); got != tt.want {
			t.Errorf("sanitize(%q) = %q, хотели %q", tt.input, got, tt.want)
		}
	}
}
