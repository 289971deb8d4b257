// Пакет views — HTML-страницы cpsu на a-h/templ: просмотрщики файлов
// (изображение, текст, видео) и просмотрщик JSON для браузеров.
// Разметка — в *.templ, *_templ.go генерирует `templ generate`.
package views

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

// Location — адрес страницы для мета-тегов.
type Location struct {
	// Base — базовый URL сервиса без завершающего слэша
	Base string
	// Path — путь запроса
	Path string
}

// URL возвращает абсолютный адрес страницы.
func (l Location) URL() string {
	return l.Base + l.Path
}

// meta — мета-тег Open Graph / Twitter.
type meta struct {
	property string
	content  string
}

// FileView — данные просмотрщика файла.
type FileView struct {
	Location Location
	// Name — публичное имя
	Name string
	// FileName — имя файла на диске
	FileName string
	MimeType string
	Size     int64
	// Body — содержимое для текстового просмотра
	Body string
}

// Title возвращает заголовок страницы просмотра.
func (v FileView) Title() string {
	return v.Name + " - CPSU Viewer"
}

// rawURL — адрес исходного файла.
func (v FileView) rawURL() string {
	return v.Location.Base + "/" + v.FileName
}

func imageMetas(v FileView) []meta {
	return []meta{
		{"og:title", v.Name},
		{"og:type", "website"},
		{"og:url", v.Location.URL()},
		{"og:image", v.rawURL()},
		{"twitter:card", "summary_large_image"},
		{"twitter:image", v.rawURL()},
	}
}

func textMetas(v FileView) []meta {
	return []meta{
		{"og:title", v.Name},
		{"og:type", "website"},
		{"og:url", v.Location.URL()},
		{"og:description", preview(v.Body, 200)},
	}
}

func videoMetas(v FileView) []meta {
	return []meta{
		{"og:title", v.Name},
		{"og:type", "video.other"},
		{"og:url", v.Location.URL()},
		{"og:video", v.rawURL()},
		{"og:video:type", v.MimeType},
		{"twitter:card", "player"},
	}
}

// humanSize — размер для подписи под файлом.
func humanSize(size int64) string {
	return humanize.Bytes(uint64(max(size, 0)))
}

// preview обрезает текст до limit рун.
func preview(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

// JSONView — данные просмотрщика JSON.
type JSONView struct {
	Title    string
	Location Location
	// MetaTitle добавляет og:title
	MetaTitle bool
	Body      any
}

// JSONViewer — страница с отформатированным JSON-ответом.
func JSONViewer(v JSONView) (templ.Component, error) {
	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v.Body); err != nil {
		return nil, err
	}

	var metas []meta
	if v.MetaTitle {
		metas = append(metas, meta{"og:title", v.Title}, meta{"og:url", v.Location.URL()})
	}
	return page(v.Title, metas, jsonBody(strings.TrimSpace(data.String()))), nil
}

const stylesheet = `body{margin:0;background:#1e1e1e;color:#ddd;font-family:sans-serif}` +
	`main{display:flex;flex-direction:column;align-items:center;padding:1rem}` +
	`img,video{max-width:100%;max-height:90vh}` +
	`pre{width:100%;box-sizing:border-box;overflow:auto;background:#111;padding:1rem;white-space:pre-wrap;word-break:break-all}` +
	`footer{font-size:.8rem;color:#888;margin-top:.5rem}a{color:#8ab4f8}`
