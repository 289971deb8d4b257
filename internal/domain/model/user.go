package model

// User — запись таблицы users.
type User struct {
	// UserID — идентификатор (0 — системный пользователь, не может загружать файлы)
	UserID int64
	// Name — логин dashboard
	Name string
	// Key — ключ загрузки (заголовок CPSU-Key)
	Key string
	// PasswordHash — argon2id-хэш в формате PHC, nil если пароль не задан
	PasswordHash *string
	// Banned — заблокированный пользователь не может загружать и входить
	Banned bool
}

// CanUpload возвращает true, если пользователь может загружать файлы.
func (u *User) CanUpload() bool {
	return u.UserID > SystemUserID && !u.Banned
}
