package service

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFileRepo — mock FileRepository. Неуказанные функции ведут себя
// как пустая БД; Insert по умолчанию сохраняет записи в inserted.
type mockFileRepo struct {
	mu       sync.Mutex
	inserted []*model.FileRecord

	NameExistsFn            func(ctx context.Context, name string) (bool, error)
	InsertFn                func(ctx context.Context, f *model.FileRecord) error
	GetByNameFn             func(ctx context.Context, name string) (*model.FileRecord, error)
	GetByAccessKeyFn        func(ctx context.Context, accessKey string) (*model.FileRecord, error)
	MarkDeletedFn           func(ctx context.Context, fileID int64) error
	MarkDeletedByFileNameFn func(ctx context.Context, fileName string) (int64, error)
	ListLiveFileNamesFn     func(ctx context.Context) ([]string, error)
	ListByUserFn            func(ctx context.Context, userID int64, limit, offset int) ([]*model.FileRecord, error)
	StatsByUserFn           func(ctx context.Context, userID int64) (*model.UserStats, error)
}

func (m *mockFileRepo) NameExists(ctx context.Context, name string) (bool, error) {
	if m.NameExistsFn != nil {
		return m.NameExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockFileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	if m.InsertFn != nil {
		if err := m.InsertFn(ctx, f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.FileID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, f)
	return nil
}

func (m *mockFileRepo) GetByName(ctx context.Context, name string) (*model.FileRecord, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, name)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) GetByAccessKey(ctx context.Context, accessKey string) (*model.FileRecord, error) {
	if m.GetByAccessKeyFn != nil {
		return m.GetByAccessKeyFn(ctx, accessKey)
	}
	return nil, repository.ErrNotFound
}

func (m *mockFileRepo) MarkDeleted(ctx context.Context, fileID int64) error {
	if m.MarkDeletedFn != nil {
		return m.MarkDeletedFn(ctx, fileID)
	}
	return nil
}

func (m *mockFileRepo) MarkDeletedByFileName(ctx context.Context, fileName string) (int64, error) {
	if m.MarkDeletedByFileNameFn != nil {
		return m.MarkDeletedByFileNameFn(ctx, fileName)
	}
	return 0, nil
}

func (m *mockFileRepo) ListLiveFileNames(ctx context.Context) ([]string, error) {
	if m.ListLiveFileNamesFn != nil {
		return m.ListLiveFileNamesFn(ctx)
	}
	return nil, nil
}

func (m *mockFileRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.FileRecord, error) {
	if m.ListByUserFn != nil {
		return m.ListByUserFn(ctx, userID, limit, offset)
	}
	return nil, nil
}

func (m *mockFileRepo) StatsByUser(ctx context.Context, userID int64) (*model.UserStats, error) {
	if m.StatsByUserFn != nil {
		return m.StatsByUserFn(ctx, userID)
	}
	return &model.UserStats{}, nil
}

// records возвращает вставленные записи.
func (m *mockFileRepo) records() []*model.FileRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.FileRecord(nil), m.inserted...)
}

// mockUserRepo — mock UserRepository.
type mockUserRepo struct {
	GetByKeyFn       func(ctx context.Context, key string) (*model.User, error)
	GetByNameFn      func(ctx context.Context, name string) (*model.User, error)
	GetByIDFn        func(ctx context.Context, userID int64) (*model.User, error)
	UpdatePasswordFn func(ctx context.Context, userID int64, passwordHash string) error
}

func (m *mockUserRepo) GetByKey(ctx context.Context, key string) (*model.User, error) {
	if m.GetByKeyFn != nil {
		return m.GetByKeyFn(ctx, key)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) GetByName(ctx context.Context, name string) (*model.User, error) {
	if m.GetByNameFn != nil {
		return m.GetByNameFn(ctx, name)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, userID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	if m.UpdatePasswordFn != nil {
		return m.UpdatePasswordFn(ctx, userID, passwordHash)
	}
	return nil
}

// mockThumbnailer — mock Thumbnailer.
type mockThumbnailer struct {
	GenerateFn func(name, sourcePath, mimeType string) ([]byte, error)
	removed    []string
}

func (m *mockThumbnailer) Generate(name, sourcePath, mimeType string) ([]byte, error) {
	if m.GenerateFn != nil {
		return m.GenerateFn(name, sourcePath, mimeType)
	}
	return []byte("jpeg"), nil
}

func (m *mockThumbnailer) Remove(name string) {
	m.removed = append(m.removed, name)
}

func strPtr(s string) *string { return &s }
