package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sinnlosername/cpsu/internal/domain/model"
)

// fileColumns — список столбцов таблицы file для SELECT-запросов.
const fileColumns = `file_id, name, file_name, mime_type, size, user_id,
	access_key, link, processor, creation_date, deletion_date`

// FileRepository — доступ к записям файлов и ссылок.
type FileRepository interface {
	// NameExists проверяет, занято ли публичное имя (включая удалённые записи).
	NameExists(ctx context.Context, name string) (bool, error)
	// Insert добавляет запись и заполняет FileID и CreationDate.
	// Нарушение уникальности name или access_key — ErrConflict.
	Insert(ctx context.Context, f *model.FileRecord) error
	// GetByName ищет запись по name или file_name.
	GetByName(ctx context.Context, name string) (*model.FileRecord, error)
	// GetByAccessKey ищет запись по ключу удаления.
	GetByAccessKey(ctx context.Context, accessKey string) (*model.FileRecord, error)
	// MarkDeleted мягко удаляет живую запись. ErrNotFound, если живой записи нет.
	MarkDeleted(ctx context.Context, fileID int64) error
	// MarkDeletedByFileName мягко удаляет живые записи с указанным file_name.
	MarkDeletedByFileName(ctx context.Context, fileName string) (int64, error)
	// ListLiveFileNames возвращает file_name всех живых файлов (без ссылок).
	ListLiveFileNames(ctx context.Context) ([]string, error)
	// ListByUser возвращает страницу записей пользователя, новые первыми.
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.FileRecord, error)
	// StatsByUser возвращает агрегированную статистику пользователя.
	StatsByUser(ctx context.Context, userID int64) (*model.UserStats, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// NameExists проверяет наличие записи с указанным публичным именем.
func (r *fileRepo) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM file WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки имени: %w", err)
	}
	return exists, nil
}

// Insert добавляет запись файла.
func (r *fileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	creation := f.CreationDate
	if creation.IsZero() {
		creation = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO file (name, file_name, mime_type, size, user_id, access_key, link, processor, creation_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING file_id, creation_date`,
		f.Name, f.FileName, f.MimeType, f.Size, f.UserID, f.AccessKey, f.Link, f.Processor, creation,
	).Scan(&f.FileID, &f.CreationDate)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrConflict, violatedConstraint(err))
		}
		return fmt.Errorf("ошибка добавления файла: %w", err)
	}
	return nil
}

// GetByName ищет запись по name или file_name.
// Совпадение по name имеет приоритет.
func (r *fileRepo) GetByName(ctx context.Context, name string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file
		WHERE name = $1 OR file_name = $1
		ORDER BY (name = $1) DESC, file_id DESC
		LIMIT 1`, fileColumns)
	return r.getOne(ctx, query, name)
}

// GetByAccessKey ищет запись по ключу удаления.
func (r *fileRepo) GetByAccessKey(ctx context.Context, accessKey string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file WHERE access_key = $1`, fileColumns)
	return r.getOne(ctx, query, accessKey)
}

// MarkDeleted проставляет deletion_date живой записи.
func (r *fileRepo) MarkDeleted(ctx context.Context, fileID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE file SET deletion_date = NOW() WHERE file_id = $1 AND deletion_date IS NULL`,
		fileID,
	)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeletedByFileName проставляет deletion_date живым записям с указанным file_name.
func (r *fileRepo) MarkDeletedByFileName(ctx context.Context, fileName string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE file SET deletion_date = NOW() WHERE file_name = $1 AND deletion_date IS NULL`,
		fileName,
	)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления файла по имени: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListLiveFileNames возвращает имена живых файлов на диске.
func (r *fileRepo) ListLiveFileNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT file_name FROM file WHERE deletion_date IS NULL AND file_name IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListByUser возвращает страницу записей пользователя.
func (r *fileRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM file
		WHERE user_id = $1
		ORDER BY creation_date DESC, file_id DESC
		LIMIT $2 OFFSET $3`, fileColumns)

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения файлов пользователя: %w", err)
	}
	defer rows.Close()

	result := make([]*model.FileRecord, 0, limit)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// StatsByUser считает файлы и суммарный размер пользователя.
func (r *fileRepo) StatsByUser(ctx context.Context, userID int64) (*model.UserStats, error) {
	s := &model.UserStats{}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE deletion_date IS NULL),
			COUNT(*) FILTER (WHERE deletion_date IS NOT NULL),
			COUNT(*) FILTER (WHERE link IS NOT NULL),
			COALESCE(SUM(size) FILTER (WHERE deletion_date IS NULL AND file_name IS NOT NULL), 0)
		FROM file WHERE user_id = $1`, userID,
	).Scan(&s.TotalFiles, &s.ActiveFiles, &s.DeletedFiles, &s.Links, &s.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики: %w", err)
	}
	return s, nil
}

// getOne выполняет запрос одной записи и маппит pgx.ErrNoRows в ErrNotFound.
func (r *fileRepo) getOne(ctx context.Context, query string, args ...any) (*model.FileRecord, error) {
	f, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// scanFile сканирует строку в порядке fileColumns.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.FileID, &f.Name, &f.FileName, &f.MimeType, &f.Size, &f.UserID,
		&f.AccessKey, &f.Link, &f.Processor, &f.CreationDate, &f.DeletionDate,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}
