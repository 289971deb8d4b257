// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — запись отсутствует или удалена.
	ErrNotFound = errors.New("файл не существует или удалён")
	// ErrAlreadyDeleted — запись уже помечена удалённой.
	ErrAlreadyDeleted = errors.New("файл уже удалён")
	// ErrInvalidCredentials — неизвестный пользователь или неверный пароль.
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	// ErrBanned — пользователь заблокирован.
	ErrBanned = errors.New("пользователь заблокирован")
	// ErrInvalidKey — ключ загрузки не принадлежит ни одному пользователю.
	ErrInvalidKey = errors.New("недействительный ключ загрузки")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNameSpaceExhausted — не удалось подобрать свободное имя за отведённое число попыток.
	ErrNameSpaceExhausted = errors.New("не удалось подобрать свободное имя")
)

// UploadError — ошибка загрузки с HTTP-кодом и сообщением для клиента.
type UploadError struct {
	StatusCode int
	Message    string
	// Err — исходная ошибка (для логов), клиенту не отдаётся
	Err error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.StatusCode, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// uploadErr создаёт UploadError.
func uploadErr(status int, message string) *UploadError {
	return &UploadError{StatusCode: status, Message: message}
}
