package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sinnlosername/cpsu/internal/domain/model"
)

const userColumns = `user_id, name, upload_key, password_hash, banned`

// UserRepository — доступ к пользователям.
type UserRepository interface {
	GetByKey(ctx context.Context, key string) (*model.User, error)
	GetByName(ctx context.Context, name string) (*model.User, error)
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	// UpdatePassword сохраняет argon2id-хэш пароля.
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByKey(ctx context.Context, key string) (*model.User, error) {
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE upload_key = $1`, userColumns), key)
}

func (r *userRepo) GetByName(ctx context.Context, name string) (*model.User, error) {
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE name = $1`, userColumns), name)
}

func (r *userRepo) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM users WHERE user_id = $1`, userColumns), userID)
}

func (r *userRepo) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE user_id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("ошибка обновления пароля: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.UserID, &u.Name, &u.Key, &u.PasswordHash, &u.Banned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}
