// allocator.go — выдача публичных имён файлов и секретных ключей.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// nameAlphabet — алфавит публичных имён.
const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// maxNameLen — имена короче этого значения (ограничение столбца file.name).
const maxNameLen = 20

// NameChecker — проверка занятости имени.
type NameChecker interface {
	NameExists(ctx context.Context, name string) (bool, error)
}

// NameAllocator подбирает свободные публичные имена.
// Свободное на момент проверки имя может быть занято параллельной загрузкой:
// окончательную уникальность гарантирует ограничение UNIQUE на file.name.
type NameAllocator struct {
	checker     NameChecker
	length      int
	maxAttempts int
	random      io.Reader
}

// NewNameAllocator создаёт аллокатор имён длины length.
// maxAttempts ограничивает число проверок занятости за один вызов Allocate.
func NewNameAllocator(checker NameChecker, length, maxAttempts int) *NameAllocator {
	return &NameAllocator{
		checker:     checker,
		length:      length,
		maxAttempts: maxAttempts,
		random:      rand.Reader,
	}
}

// Allocate возвращает имя, не занятое ни одной записью (включая удалённые).
func (a *NameAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		name, err := a.candidate()
		if err != nil {
			return "", err
		}

		exists, err := a.checker.NameExists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("ошибка проверки имени: %w", err)
		}
		if !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %d попыток", ErrNameSpaceExhausted, a.maxAttempts)
}

// candidate генерирует случайное имя. Каждый символ выбирается независимо
// и равновероятно (rand.Int без смещения по модулю).
func (a *NameAllocator) candidate() (string, error) {
	bound := big.NewInt(int64(len(nameAlphabet)))

	var sb strings.Builder
	sb.Grow(a.length)
	for i := 0; i < a.length; i++ {
		n, err := rand.Int(a.random, bound)
		if err != nil {
			return "", fmt.Errorf("ошибка генерации имени: %w", err)
		}
		sb.WriteByte(nameAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// IsValidName проверяет форму публичного имени: 1-19 символов без точки.
func IsValidName(name string) bool {
	return len(name) > 0 && len(name) < maxNameLen && !strings.Contains(name, ".")
}

// GenerateKey возвращает 32 hex-символа из 16 криптослучайных байт.
// Используется для ключей удаления и идентификаторов сессий.
func GenerateKey() string {
	b := make([]byte, 16)
	// С Go 1.24 rand.Read не возвращает ошибок
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
