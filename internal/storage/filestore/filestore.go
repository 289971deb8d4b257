// Пакет filestore — операции с загруженными файлами в директории данных.
// Запись всегда идёт через временный файл: запись → fsync → atomic rename,
// поэтому частично записанный файл никогда не виден под своим именем.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Ошибки файлового хранилища.
var (
	// ErrTooLarge — поток длиннее допустимого лимита.
	ErrTooLarge = errors.New("превышен максимальный размер файла")
	// ErrNotFound — файл отсутствует в директории данных.
	ErrNotFound = errors.New("файл не найден")
	// ErrExists — файл с таким именем уже есть, Commit не перезаписывает файлы.
	ErrExists = errors.New("файл уже существует")
	// ErrSource — ошибка чтения входного потока (обрыв клиента), а не диска.
	ErrSource = errors.New("ошибка чтения входного потока")
)

// tmpSuffix — суффикс временных файлов, такие файлы игнорируются при сверке.
const tmpSuffix = ".tmp"

// FileStore — управление файлами в директории данных.
type FileStore struct {
	dataDir string
}

// SaveResult — результат сохранения файла.
type SaveResult struct {
	// FileName — имя файла в директории данных
	FileName string
	// FullPath — путь к файлу на диске
	FullPath string
	// Size — количество записанных байт
	Size int64
}

// Entry — файл, найденный при сканировании директории данных.
type Entry struct {
	FileName string
	Size     int64
	ModTime  time.Time
}

// New создаёт FileStore и директорию данных, если её нет.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// Staged — полностью записанный и синхронизированный временный файл.
type Staged struct {
	// TmpPath — путь к временному файлу в директории данных
	TmpPath string
	// Size — количество записанных байт
	Size int64
}

// SaveFile записывает поток в файл fileName.
// limit > 0 ограничивает размер: поток длиннее limit даёт ErrTooLarge.
// При любой ошибке временный файл удаляется, файл fileName не создаётся.
func (fs *FileStore) SaveFile(reader io.Reader, fileName string, limit int64) (*SaveResult, error) {
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}

	staged, err := fs.Stage(reader, limit)
	if err != nil {
		return nil, err
	}

	fullPath, err := fs.Commit(staged.TmpPath, fileName)
	if err != nil {
		fs.Discard(staged.TmpPath)
		return nil, err
	}

	return &SaveResult{FileName: fileName, FullPath: fullPath, Size: staged.Size}, nil
}

// Stage записывает поток во временный файл и выполняет fsync.
// limit > 0 ограничивает размер: поток длиннее limit даёт ErrTooLarge.
// При ошибке временный файл удаляется.
func (fs *FileStore) Stage(reader io.Reader, limit int64) (*Staged, error) {
	f, err := fs.CreateTemp()
	if err != nil {
		return nil, err
	}
	tmpPath := f.Name()

	src := &sourceReader{r: reader}
	var limited io.Reader = src
	if limit > 0 {
		limited = io.LimitReader(src, limit+1)
	}

	size, err := io.Copy(f, limited)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		if src.err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSource, src.err)
		}
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if limit > 0 && size > limit {
		f.Close()
		os.Remove(tmpPath)
		return nil, ErrTooLarge
	}

	if err := SyncClose(f); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	return &Staged{TmpPath: tmpPath, Size: size}, nil
}

// sourceReader запоминает ошибку чтения, чтобы отличить её от ошибки записи.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
	}
	return n, err
}

// SyncClose выполняет fsync и закрывает файл.
func SyncClose(f *os.File) error {
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}
	return nil
}

// CreateTemp создаёт скрытый временный файл в директории данных.
// Файл находится на той же файловой системе, что и данные, поэтому Commit — это link + unlink.
func (fs *FileStore) CreateTemp() (*os.File, error) {
	tmpPath := filepath.Join(fs.dataDir, "."+uuid.NewString()+tmpSuffix)
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	return f, nil
}

// Commit публикует файл srcPath под именем fileName в директории данных.
// Существующий fileName не перезаписывается: в этом случае возвращается ErrExists.
// При успехе srcPath исчезает; при ошибке srcPath остаётся на месте,
// его удаление — забота вызывающего кода (Discard).
func (fs *FileStore) Commit(srcPath, fileName string) (string, error) {
	if err := validateFileName(fileName); err != nil {
		return "", err
	}

	fullPath := filepath.Join(fs.dataDir, fileName)
	if err := os.Link(srcPath, fullPath); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrExists, fileName)
		}
		return "", fmt.Errorf("ошибка публикации файла %s: %w", fileName, err)
	}
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("ошибка удаления временного файла: %w", err)
	}
	return fullPath, nil
}

// Discard удаляет временный или опубликованный файл по полному пути.
func (fs *FileStore) Discard(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// Open открывает файл для чтения. Вызывающий код закрывает файл.
func (fs *FileStore) Open(fileName string) (*os.File, error) {
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(fs.dataDir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, fileName)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", fileName, err)
	}
	return f, nil
}

// ReadAll читает файл целиком (текстовый просмотр).
func (fs *FileStore) ReadAll(fileName string, maxBytes int64) ([]byte, error) {
	f, err := fs.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", fileName, err)
	}
	return data, nil
}

// Path возвращает путь к файлу на диске.
func (fs *FileStore) Path(fileName string) string {
	return filepath.Join(fs.dataDir, fileName)
}

// Delete удаляет файл. Отсутствующий файл не считается ошибкой.
func (fs *FileStore) Delete(fileName string) error {
	if err := validateFileName(fileName); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(fs.dataDir, fileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", fileName, err)
	}
	return nil
}

// Exists проверяет существование файла.
func (fs *FileStore) Exists(fileName string) bool {
	if validateFileName(fileName) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(fs.dataDir, fileName))
	return err == nil && info.Mode().IsRegular()
}

// Scan возвращает обычные файлы директории данных.
// Скрытые и временные файлы пропускаются.
func (fs *FileStore) Scan() ([]Entry, error) {
	dirEntries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории данных: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, tmpSuffix) {
			continue
		}
		if !de.Type().IsRegular() {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		entries = append(entries, Entry{
			FileName: name,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	return entries, nil
}

// CheckWritable проверяет, что директория данных доступна на запись.
func (fs *FileStore) CheckWritable() error {
	testFile := filepath.Join(fs.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("директория данных недоступна для записи: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// validateFileName запрещает пути вне директории данных.
func validateFileName(fileName string) error {
	if fileName == "" || fileName != filepath.Base(fileName) || fileName == "." || fileName == ".." ||
		strings.ContainsAny(fileName, `/\`) {
		return fmt.Errorf("недопустимое имя файла: %q", fileName)
	}
	return nil
}
