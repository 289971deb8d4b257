// Пакет errors — ответы с ошибками в формате cpsu.
// Единый формат: {"message": "..."} с заголовками запрета кэширования.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // имя совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Сообщения, общие для нескольких обработчиков.
const (
	MsgInternal      = "An internal error occured"
	MsgInvalidBody   = "The supplied body is invalid"
	MsgNotLoggedIn   = "You must be logged in to use this endpoint"
	MsgInvalidSess   = "Your session is invalid. Please login again"
	MsgBanned        = "Your account is banned"
	MsgFileNotFound  = "This file does not exist or was deleted"
	MsgNoThumbnails  = "This file type does not have thumbnails"
	MsgUnknownAction = "This action does not exist"
)

// errorBody — тело ответа ошибки.
type errorBody struct {
	Message string `json:"message"`
}

// SetNoCache выставляет заголовки запрета кэширования.
func SetNoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "Sun, 11 Mar 1984 13:37:00 GMT")
}

// WriteJSON записывает успешный JSON-ответ (с отступами, без кэширования).
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	SetNoCache(w.Header())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

// WriteError записывает ответ ошибки в формате cpsu.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, errorBody{Message: message})
}

// --- Конструкторы для типичных ошибок ---

// BadRequest — 400 некорректные входные данные.
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

// Forbidden — 403 доступ запрещён.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

// Unprocessable — 422 запрос понятен, но не может быть выполнен.
func Unprocessable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, MsgInternal)
}
