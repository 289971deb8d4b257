// Пакет model — доменные модели cpsu.
package model

import "time"

// Процессоры загрузки (источник записи файла).
const (
	ProcessorSimple   = "simple"
	ProcessorShareX   = "sharex"
	ProcessorDataSync = "datasync"
)

// SystemUserID — системный пользователь, владелец файлов, найденных при сверке.
const SystemUserID int64 = 0

// MIMETypeURIList — MIME-тип записей сокращателя ссылок.
const MIMETypeURIList = "text/uri-list"

// FileRecord — запись таблицы file.
// Ровно одно из полей FileName и Link заполнено.
type FileRecord struct {
	// FileID — суррогатный ключ
	FileID int64
	// Name — публичное имя (без точек, 1-19 символов)
	Name string
	// FileName — имя файла в директории данных: name + "." + ext. nil для ссылок.
	FileName *string
	// MimeType — MIME-тип содержимого
	MimeType string
	// Size — размер в байтах
	Size int64
	// UserID — владелец (0 — системный пользователь)
	UserID int64
	// AccessKey — секрет для удаления (32 hex-символа)
	AccessKey string
	// Link — целевой URL для записей сокращателя. nil для файлов.
	Link *string
	// Processor — simple, sharex, datasync
	Processor string
	// CreationDate — время загрузки
	CreationDate time.Time
	// DeletionDate — время мягкого удаления, nil — файл жив
	DeletionDate *time.Time
}

// IsDeleted возвращает true, если запись помечена удалённой.
func (f *FileRecord) IsDeleted() bool {
	return f.DeletionDate != nil
}

// IsLink возвращает true для записей сокращателя ссылок.
func (f *FileRecord) IsLink() bool {
	return f.Link != nil
}

// StoredName возвращает имя файла на диске или пустую строку для ссылок.
func (f *FileRecord) StoredName() string {
	if f.FileName == nil {
		return ""
	}
	return *f.FileName
}

// UserStats — агрегированная статистика пользователя для dashboard.
type UserStats struct {
	TotalFiles   int64
	ActiveFiles  int64
	DeletedFiles int64
	Links        int64
	// TotalSize — суммарный размер живых файлов
	TotalSize int64
}
