package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sinnlosername/cpsu/internal/auth"
	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
)

func usersByName(users ...*model.User) *mockUserRepo {
	return &mockUserRepo{
		GetByNameFn: func(_ context.Context, name string) (*model.User, error) {
			for _, u := range users {
				if u.Name == name {
					return u, nil
				}
			}
			return nil, repository.ErrNotFound
		},
		GetByKeyFn: func(_ context.Context, key string) (*model.User, error) {
			for _, u := range users {
				if u.Key == key {
					return u, nil
				}
			}
			return nil, repository.ErrNotFound
		},
	}
}

func TestUserByKey(t *testing.T) {
	repo := usersByName(
		&model.User{UserID: 0, Name: "system", Key: "system-key", Banned: true},
		&model.User{UserID: 1, Name: "alice", Key: "alice-key"},
		&model.User{UserID: 2, Name: "bob", Key: "bob-key", Banned: true},
	)
	svc := NewUserService(repo, &mockFileRepo{}, testLogger())

	tests := []struct {
		key  string
		want error
	}{
		{"alice-key", nil},
		{"unknown", ErrInvalidKey},
		{"system-key", ErrInvalidKey},
		{"bob-key", ErrBanned},
	}
	for _, tt := range tests {
		user, err := svc.UserByKey(context.Background(), tt.key)
		if !errors.Is(err, tt.want) {
			t.Errorf("UserByKey(%q): ошибка %v, ожидается %v", tt.key, err, tt.want)
		}
		if tt.want == nil && user.UserID != 1 {
			t.Errorf("UserByKey(%q) вернул пользователя %d", tt.key, user.UserID)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	hash, err := auth.HashPassword("dashboard-pass")
	if err != nil {
		t.Fatal(err)
	}
	broken := "not-a-hash"

	repo := usersByName(
		&model.User{UserID: 0, Name: "system", Key: "system-key"},
		&model.User{UserID: 1, Name: "alice", Key: "alice-key", PasswordHash: &hash},
		&model.User{UserID: 2, Name: "bob", Key: "bob-key", Banned: true},
		&model.User{UserID: 3, Name: "carol", Key: "carol-key", PasswordHash: &broken},
	)
	svc := NewUserService(repo, &mockFileRepo{}, testLogger())

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"вход по ключу", "alice", "alice-key", nil},
		{"вход по паролю", "alice", "dashboard-pass", nil},
		{"неверный пароль", "alice", "wrong", ErrInvalidCredentials},
		{"неизвестный пользователь", "mallory", "x", ErrInvalidCredentials},
		{"системный пользователь", "system", "system-key", ErrInvalidCredentials},
		{"заблокирован, верный ключ", "bob", "bob-key", ErrBanned},
		{"заблокирован, неверный ключ", "bob", "wrong", ErrInvalidCredentials},
		{"битый хеш", "carol", "whatever", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tt.username, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("ошибка %v, ожидается %v", err, tt.want)
			}
		})
	}
}

func TestStats(t *testing.T) {
	files := &mockFileRepo{
		StatsByUserFn: func(_ context.Context, userID int64) (*model.UserStats, error) {
			if userID != 1 {
				t.Errorf("StatsByUser(%d), ожидается 1", userID)
			}
			return &model.UserStats{TotalFiles: 5, ActiveFiles: 3, DeletedFiles: 2, Links: 1, TotalSize: 1500}, nil
		},
	}
	svc := NewUserService(&mockUserRepo{}, files, testLogger())

	st, err := svc.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalFiles != 5 || st.ActiveFiles != 3 || st.DeletedFiles != 2 || st.Links != 1 || st.TotalSize != 1500 {
		t.Errorf("неожиданная статистика: %+v", st)
	}
	if st.TotalSizeHuman != "1.5 kB" {
		t.Errorf("TotalSizeHuman = %q, ожидается 1.5 kB", st.TotalSizeHuman)
	}
}

func TestFiles_Paging(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	files := &mockFileRepo{
		ListByUserFn: func(_ context.Context, userID int64, limit, offset int) ([]*model.FileRecord, error) {
			if limit != 10 || offset != 20 {
				t.Errorf("ListByUser(limit=%d, offset=%d), ожидается 10, 20", limit, offset)
			}
			return []*model.FileRecord{{
				FileID: 1, Name: "abcdef", FileName: strPtr("abcdef.png"), MimeType: "image/png",
				CreationDate: created, Size: 3, AccessKey: "key",
			}}, nil
		},
	}
	svc := NewUserService(&mockUserRepo{}, files, testLogger())

	entries, err := svc.Files(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "abcdef" || !entries[0].CreationDate.Equal(created) {
		t.Errorf("неожиданный список: %+v", entries)
	}

	if _, err := svc.Files(context.Background(), 1, -1); !errors.Is(err, ErrValidation) {
		t.Errorf("отрицательная страница: ожидалась ErrValidation, получено %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	var stored string
	users := &mockUserRepo{
		UpdatePasswordFn: func(_ context.Context, userID int64, hash string) error {
			if userID != 1 {
				return repository.ErrNotFound
			}
			stored = hash
			return nil
		},
	}
	svc := NewUserService(users, &mockFileRepo{}, testLogger())

	if err := svc.ChangePassword(context.Background(), 1, "short"); !errors.Is(err, ErrValidation) {
		t.Errorf("короткий пароль: ожидалась ErrValidation, получено %v", err)
	}

	if err := svc.ChangePassword(context.Background(), 1, "long enough"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	ok, err := auth.VerifyPassword("long enough", stored)
	if err != nil || !ok {
		t.Errorf("сохранённый хеш не проходит проверку: ok=%v err=%v", ok, err)
	}

	if err := svc.ChangePassword(context.Background(), 99, "long enough"); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный пользователь: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestProfile(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, &mockFileRepo{}, testLogger())

	p := svc.Profile(&model.User{UserID: 1, Name: "alice", Key: "alice-key"})
	if p.Username != "alice" || p.Key != "alice-key" {
		t.Errorf("неожиданный профиль: %+v", p)
	}
}
