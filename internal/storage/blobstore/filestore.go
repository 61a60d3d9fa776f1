package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// tmpSuffix — суффикс временных файлов незавершённой записи.
const tmpSuffix = ".tmp"

// FSStore — хранение файлов в директории локальной файловой системы.
type FSStore struct {
	// dataDir — абсолютный путь корневой директории (SM_DATA_DIR)
	dataDir string
}

// NewFSStore создаёт FSStore. Создаёт директорию, если она не существует.
func NewFSStore(dataDir string) (*FSStore, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка определения пути %s: %w", dataDir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}
	return &FSStore{dataDir: abs}, nil
}

// Put записывает данные из reader на диск с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл (O_EXCL) → запись + SHA-256 → fsync → atomic rename.
// Temp файл скрытый (.<key>.tmp), Walk его не видит.
// При любой ошибке, включая превышение лимита и отмену контекста,
// temp файл удаляется. Оставшиеся после падения процесса temp файлы
// удаляет RemoveStale.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (*PutResult, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(s.dataDir, key)
	tmpPath := s.tmpPath(key)

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	hasher := sha256.New()
	tee := io.TeeReader(uploadReader(ctx, r, opts.MaxSize), hasher)

	size, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
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

	return &PutResult{
		Key:      key,
		Location: fullPath,
		Size:     size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть Object.
func (s *FSStore) Open(_ context.Context, key string) (Object, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dataDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}
	return f, nil
}

// Exists проверяет существование файла на диске.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	info, err := os.Stat(filepath.Join(s.dataDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка проверки файла %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Delete удаляет файл с диска. Возвращает nil, если файл уже не существует.
func (s *FSStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dataDir, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// Location возвращает абсолютный путь к файлу на диске.
func (s *FSStore) Location(key string) string {
	return filepath.Join(s.dataDir, key)
}

// Walk обходит файлы директории данных.
// Служебные (скрытые) и временные файлы пропускаются.
func (s *FSStore) Walk(ctx context.Context, fn func(BlobInfo) error) error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("ошибка чтения директории данных: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, tmpSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Файл мог быть удалён между ReadDir и Info
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("ошибка получения информации о файле %s: %w", name, err)
		}

		if err := fn(BlobInfo{Key: name, Size: info.Size(), ModTime: info.ModTime()}); err != nil {
			return err
		}
	}
	return nil
}

// Check проверяет, что директория данных доступна.
func (s *FSStore) Check(_ context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("директория данных недоступна: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s не является директорией", s.dataDir)
	}
	return nil
}

// RemoveStale удаляет temp файлы незавершённых записей, изменённые
// раньше cutoff. Возвращает число удалённых файлов.
func (s *FSStore) RemoveStale(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения директории данных: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := entry.Name()
		if entry.IsDir() || !isTempName(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("ошибка получения информации о файле %s: %w", name, err)
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dataDir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("ошибка удаления временного файла %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// DataDir возвращает путь к директории данных.
func (s *FSStore) DataDir() string {
	return s.dataDir
}

// tmpPath возвращает путь temp файла для ключа key.
func (s *FSStore) tmpPath(key string) string {
	return filepath.Join(s.dataDir, "."+key+tmpSuffix)
}

// isTempName определяет temp файл незавершённой записи.
func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tmpSuffix)
}
