// Пакет filestore — хранение файлов улик на локальном диске.
// Запись потоковая с подсчётом SHA-256 на лету; файлы раскладываются
// по каталогам улик и не изменяются после записи.
package filestore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTooLarge — файл превышает допустимый размер.
var ErrTooLarge = errors.New("файл превышает допустимый размер")

// ErrNotExist — файл отсутствует на диске.
var ErrNotExist = errors.New("файл отсутствует в хранилище")

// FileStore — управление файлами улик на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (BE_DATA_DIR)
	dataDir string
	// maxSize — максимальный размер одного файла в байтах
	maxSize int64
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — относительный путь файла в dataDir
	StoragePath string
	// Size — размер записанных данных в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// New создаёт FileStore и при необходимости директорию данных.
func New(dataDir string, maxSize int64) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir, maxSize: maxSize}, nil
}

// SaveFile записывает данные из reader в каталог улики с подсчётом SHA-256.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке или превышении размера temp файл удаляется.
func (fs *FileStore) SaveFile(reader io.Reader, evidenceID, originalFilename string) (*SaveResult, error) {
	storagePath := filepath.Join(evidenceDir(evidenceID), generateStorageName(originalFilename))
	fullPath := filepath.Join(fs.dataDir, storagePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога улики: %w", err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	src := io.TeeReader(reader, hasher)
	if fs.maxSize > 0 {
		src = io.LimitReader(src, fs.maxSize+1)
	}

	size, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if fs.maxSize > 0 && size > fs.maxSize {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: больше %d байт", ErrTooLarge, fs.maxSize)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: filepath.ToSlash(storagePath),
		Size:        size,
		Checksum:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// ReadFile открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) ReadFile(storagePath string) (*os.File, error) {
	fullPath, err := fs.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}
	return f, nil
}

// DeleteFile удаляет файл с диска. Отсутствующий файл — не ошибка.
func (fs *FileStore) DeleteFile(storagePath string) error {
	fullPath, err := fs.resolve(storagePath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// resolve возвращает абсолютный путь, не выходящий за пределы dataDir.
func (fs *FileStore) resolve(storagePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storagePath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("недопустимый путь файла: %q", storagePath)
	}
	return filepath.Join(fs.dataDir, clean), nil
}

// evidenceDir — каталог улики: два первых символа id и сам id.
func evidenceDir(evidenceID string) string {
	id := sanitize(evidenceID)
	prefix := id
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(prefix, id)
}

// generateStorageName генерирует имя файла для хранения на диске.
// Формат: {name}_{timestamp}_{uuid}.{ext}
func generateStorageName(originalFilename string) string {
	base := filepath.Base(originalFilename)
	ext := sanitize(strings.TrimPrefix(filepath.Ext(base), "."))
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))

	if len(name) > 50 {
		name = name[:50]
	}

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8]

	if ext != "file" && ext != "" {
		return fmt.Sprintf("%s_%s_%s.%s", name, ts, uid, ext)
	}
	return fmt.Sprintf("%s_%s_%s", name, ts, uid)
}

// sanitize оставляет только латиницу, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}
