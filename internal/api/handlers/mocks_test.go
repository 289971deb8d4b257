package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sinnlosername/cpsu/internal/api/middleware"
	"github.com/sinnlosername/cpsu/internal/auth"
	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockUploader — mock Uploader.
type mockUploader struct {
	ProcessFn func(ctx context.Context, processor string, req *service.UploadRequest, user *model.User) (*service.UploadResult, error)
}

func (m *mockUploader) Process(ctx context.Context, processor string, req *service.UploadRequest, user *model.User) (*service.UploadResult, error) {
	if m.ProcessFn != nil {
		return m.ProcessFn(ctx, processor, req, user)
	}
	return &service.UploadResult{Name: "abcdef", AccessKey: "key"}, nil
}

// mockFiles — mock FileProvider.
type mockFiles struct {
	ResolveFn   func(ctx context.Context, key string) (*model.FileRecord, error)
	OpenFn      func(record *model.FileRecord) (*os.File, error)
	ReadTextFn  func(record *model.FileRecord, maxBytes int64) ([]byte, error)
	ThumbnailFn func(record *model.FileRecord) ([]byte, error)
	DeleteFn    func(ctx context.Context, accessKey string) (*model.FileRecord, error)
}

func (m *mockFiles) Resolve(ctx context.Context, key string) (*model.FileRecord, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, key)
	}
	return nil, service.ErrNotFound
}

func (m *mockFiles) Info(record *model.FileRecord) *service.FileInfo {
	return &service.FileInfo{
		Name:     record.Name,
		FileName: record.FileName,
		MimeType: record.MimeType,
		Size:     record.Size,
	}
}

func (m *mockFiles) Open(record *model.FileRecord) (*os.File, error) {
	if m.OpenFn != nil {
		return m.OpenFn(record)
	}
	return nil, service.ErrNotFound
}

func (m *mockFiles) ReadText(record *model.FileRecord, maxBytes int64) ([]byte, error) {
	if m.ReadTextFn != nil {
		return m.ReadTextFn(record, maxBytes)
	}
	return nil, service.ErrNotFound
}

func (m *mockFiles) Thumbnail(record *model.FileRecord) ([]byte, error) {
	if m.ThumbnailFn != nil {
		return m.ThumbnailFn(record)
	}
	return nil, service.ErrNotFound
}

func (m *mockFiles) Delete(ctx context.Context, accessKey string) (*model.FileRecord, error) {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, accessKey)
	}
	return nil, service.ErrNotFound
}

// mockUsers — mock UserProvider и middleware.UserLoader.
type mockUsers struct {
	UserByKeyFn      func(ctx context.Context, key string) (*model.User, error)
	AuthenticateFn   func(ctx context.Context, username, password string) (*model.User, error)
	UserByIDFn       func(ctx context.Context, userID int64) (*model.User, error)
	StatsFn          func(ctx context.Context, userID int64) (*service.Stats, error)
	FilesFn          func(ctx context.Context, userID int64, page int) ([]service.FileEntry, error)
	ChangePasswordFn func(ctx context.Context, userID int64, newPassword string) error
}

func (m *mockUsers) UserByKey(ctx context.Context, key string) (*model.User, error) {
	if m.UserByKeyFn != nil {
		return m.UserByKeyFn(ctx, key)
	}
	return nil, service.ErrInvalidKey
}

func (m *mockUsers) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx, username, password)
	}
	return nil, service.ErrInvalidCredentials
}

func (m *mockUsers) UserByID(ctx context.Context, userID int64) (*model.User, error) {
	if m.UserByIDFn != nil {
		return m.UserByIDFn(ctx, userID)
	}
	return nil, service.ErrNotFound
}

func (m *mockUsers) Stats(ctx context.Context, userID int64) (*service.Stats, error) {
	if m.StatsFn != nil {
		return m.StatsFn(ctx, userID)
	}
	return &service.Stats{}, nil
}

func (m *mockUsers) Files(ctx context.Context, userID int64, page int) ([]service.FileEntry, error) {
	if m.FilesFn != nil {
		return m.FilesFn(ctx, userID, page)
	}
	return []service.FileEntry{}, nil
}

func (m *mockUsers) Profile(user *model.User) *service.Profile {
	return &service.Profile{Username: user.Name, Key: user.Key}
}

func (m *mockUsers) ChangePassword(ctx context.Context, userID int64, newPassword string) error {
	if m.ChangePasswordFn != nil {
		return m.ChangePasswordFn(ctx, userID, newPassword)
	}
	return nil
}

// mockReadiness — mock ReadinessChecker.
type mockReadiness struct {
	status, message string
}

func (m *mockReadiness) CheckReady(context.Context) (string, string) { return m.status, m.message }

// mockStorage — mock StorageChecker.
type mockStorage struct{ err error }

func (m *mockStorage) CheckWritable() error { return m.err }

// testEnv — роутер со всеми обработчиками на моках.
type testEnv struct {
	router   http.Handler
	uploads  *mockUploader
	files    *mockFiles
	users    *mockUsers
	sessions *auth.SessionStore
	pg       *mockReadiness
	storage  *mockStorage
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{
		uploads:  &mockUploader{},
		files:    &mockFiles{},
		users:    &mockUsers{},
		sessions: auth.NewSessionStore(time.Hour, false, service.GenerateKey),
		pg:       &mockReadiness{status: "ok"},
		storage:  &mockStorage{},
	}
	logger := testLogger()

	h := NewAPIHandler(
		NewFeedHandler(env.users, env.uploads, logger),
		NewFilesHandler(env.files, opts, logger),
		NewSitesHandler(opts, logger),
		NewDashboardHandler(env.users, env.sessions, logger),
		NewHealthHandler(env.pg, env.storage),
		middleware.NewSessionAuth(env.sessions, env.users, logger).Middleware(),
	)

	r := chi.NewRouter()
	h.Register(r)
	env.router = r
	return env
}

func strPtr(s string) *string { return &s }
