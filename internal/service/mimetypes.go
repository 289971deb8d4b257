// mimetypes.go — соответствие MIME-типов и расширений файлов.
package service

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// octetStream — MIME-тип по умолчанию для нераспознанного содержимого.
const octetStream = "application/octet-stream"

// fallbackExtensions — типы без расширения в таблице mimetype.
var fallbackExtensions = map[string]string{
	octetStream: "bin",
}

// BaseMIME отбрасывает параметры MIME-типа и приводит его к нижнему регистру:
// "Text/Plain; charset=utf-8" -> "text/plain".
func BaseMIME(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	base, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// ExtensionFor возвращает расширение (без точки) для MIME-типа
// или пустую строку, если тип неизвестен.
func ExtensionFor(contentType string) string {
	base := BaseMIME(contentType)
	if base == "" {
		return ""
	}

	if m := mimetype.Lookup(base); m != nil {
		if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" {
			return ext
		}
	}
	return fallbackExtensions[base]
}

// DetectMIME определяет MIME-тип файла на диске: сначала по расширению,
// затем по содержимому. Нераспознанный файл — application/octet-stream.
func DetectMIME(path string) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return BaseMIME(byExt)
	}

	m, err := mimetype.DetectFile(path)
	if err != nil || m == nil {
		return octetStream
	}
	return BaseMIME(m.String())
}
