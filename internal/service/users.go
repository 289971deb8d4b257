// users.go — пользователи: ключи загрузки, вход, статистика и профиль dashboard.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sinnlosername/cpsu/internal/auth"
	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
)

// Ограничения dashboard.
const (
	FilesPageSize     = 10
	MinPasswordLength = 8
)

// Stats — ответ GET /x/user/stats.
type Stats struct {
	TotalFiles     int64  `json:"totalFiles"`
	ActiveFiles    int64  `json:"activeFiles"`
	DeletedFiles   int64  `json:"deletedFiles"`
	Links          int64  `json:"links"`
	TotalSize      int64  `json:"totalSize"`
	TotalSizeHuman string `json:"totalSizeHuman"`
}

// FileEntry — элемент списка GET /x/user/files/{page}.
type FileEntry struct {
	FileID       int64      `json:"fileId"`
	Name         string     `json:"name"`
	FileName     *string    `json:"fileName"`
	MimeType     string     `json:"mimeType"`
	CreationDate time.Time  `json:"creationDate"`
	DeletionDate *time.Time `json:"deletionDate"`
	Size         int64      `json:"size"`
	AccessKey    string     `json:"accessKey"`
}

// Profile — ответ GET /x/user/profile.
type Profile struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

// UserService — операции над пользователями и их файлами.
type UserService struct {
	users  repository.UserRepository
	files  repository.FileRepository
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(
	users repository.UserRepository,
	files repository.FileRepository,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:  users,
		files:  files,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// UserByKey возвращает пользователя по ключу загрузки.
// Системный пользователь и неизвестный ключ — ErrInvalidKey,
// заблокированный — ErrBanned.
func (s *UserService) UserByKey(ctx context.Context, key string) (*model.User, error) {
	user, err := s.users.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("ошибка поиска пользователя по ключу: %w", err)
	}
	if user.UserID < 1 {
		return nil, ErrInvalidKey
	}
	if user.Banned {
		return nil, ErrBanned
	}
	return user, nil
}

// Authenticate проверяет имя и пароль. Паролем может быть ключ загрузки
// или пароль, установленный в dashboard.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetByName(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	if user.UserID == model.SystemUserID {
		return nil, ErrInvalidCredentials
	}

	keyLogin := subtle.ConstantTimeCompare([]byte(user.Key), []byte(password)) == 1
	passLogin := false
	if !keyLogin && user.PasswordHash != nil {
		passLogin, err = auth.VerifyPassword(password, *user.PasswordHash)
		if err != nil {
			s.logger.Warn("Некорректный хеш пароля пользователя",
				slog.Int64("user_id", user.UserID),
				slog.String("error", err.Error()),
			)
		}
	}
	if !keyLogin && !passLogin {
		return nil, ErrInvalidCredentials
	}

	if user.Banned {
		return nil, ErrBanned
	}

	s.logger.Info("Вход в dashboard",
		slog.Int64("user_id", user.UserID),
		slog.Bool("by_key", keyLogin),
	)
	return user, nil
}

// UserByID возвращает пользователя сессии.
func (s *UserService) UserByID(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	return user, nil
}

// Stats возвращает статистику пользователя.
func (s *UserService) Stats(ctx context.Context, userID int64) (*Stats, error) {
	st, err := s.files.StatsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalFiles:     st.TotalFiles,
		ActiveFiles:    st.ActiveFiles,
		DeletedFiles:   st.DeletedFiles,
		Links:          st.Links,
		TotalSize:      st.TotalSize,
		TotalSizeHuman: humanize.Bytes(uint64(max(st.TotalSize, 0))),
	}, nil
}

// Files возвращает страницу page (с нуля) файлов пользователя, новые первыми.
func (s *UserService) Files(ctx context.Context, userID int64, page int) ([]FileEntry, error) {
	if page < 0 {
		return nil, fmt.Errorf("%w: номер страницы должен быть >= 0", ErrValidation)
	}

	records, err := s.files.ListByUser(ctx, userID, FilesPageSize, page*FilesPageSize)
	if err != nil {
		return nil, err
	}

	entries := make([]FileEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, FileEntry{
			FileID:       r.FileID,
			Name:         r.Name,
			FileName:     r.FileName,
			MimeType:     r.MimeType,
			CreationDate: r.CreationDate,
			DeletionDate: r.DeletionDate,
			Size:         r.Size,
			AccessKey:    r.AccessKey,
		})
	}
	return entries, nil
}

// Profile возвращает имя и ключ загрузки пользователя.
func (s *UserService) Profile(user *model.User) *Profile {
	return &Profile{Username: user.Name, Key: user.Key}
}

// ChangePassword устанавливает новый пароль dashboard.
func (s *UserService) ChangePassword(ctx context.Context, userID int64, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: пароль короче %d символов", ErrValidation, MinPasswordLength)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info("Пароль dashboard изменён", slog.Int64("user_id", userID))
	return nil
}
