package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/service"
	"github.com/sinnlosername/cpsu/internal/storage/thumbcache"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func imageRecord() *model.FileRecord {
	return &model.FileRecord{
		FileID:       1,
		Name:         "abcdef",
		FileName:     strPtr("abcdef.png"),
		MimeType:     "image/png",
		Size:         4,
		CreationDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// resolveRecords отвечает записями по name и file_name.
func resolveRecords(records ...*model.FileRecord) func(context.Context, string) (*model.FileRecord, error) {
	return func(_ context.Context, key string) (*model.FileRecord, error) {
		for _, r := range records {
			if r.Name == key || r.StoredName() == key {
				return r, nil
			}
		}
		return nil, service.ErrNotFound
	}
}

// openTemp возвращает OpenFn, открывающий временный файл с содержимым content.
func openTemp(t *testing.T, content string) func(*model.FileRecord) (*os.File, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return func(_ *model.FileRecord) (*os.File, error) {
		return os.Open(path)
	}
}

func get(env *testEnv, target, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestView_Shortcuts(t *testing.T) {
	env := newTestEnv(Options{})

	rec := get(env, "/abcdef+", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/abcdef/full" {
		t.Errorf("'+': %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = get(env, "/abcdef?", "")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/abcdef/info" {
		t.Errorf("'?': %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestView_NotFound(t *testing.T) {
	env := newTestEnv(Options{})
	assertError(t, get(env, "/nothing", ""), http.StatusNotFound, "This file does not exist or was deleted")
}

func TestView_Link(t *testing.T) {
	env := newTestEnv(Options{FileCacheControl: "public, max-age=60"})
	env.files.ResolveFn = resolveRecords(&model.FileRecord{
		Name: "lnk123", Link: strPtr("https://example.com/target"), MimeType: model.MIMETypeURIList,
	})

	rec := get(env, "/lnk123", browserUA)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "https://example.com/target" {
		t.Errorf("ссылка: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=60" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestView_Raw(t *testing.T) {
	env := newTestEnv(Options{FileCacheControl: "public, max-age=60"})
	env.files.ResolveFn = resolveRecords(imageRecord())
	env.files.OpenFn = openTemp(t, "\x89PNG")

	// curl без браузерного User-Agent получает сам файл
	rec := get(env, "/abcdef", "curl/8.0")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "\x89PNG" {
		t.Errorf("тело = %q", rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=60" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}

	// Обращение по имени файла отдаёт файл даже браузеру
	rec = get(env, "/abcdef.png", browserUA)
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("по имени файла: Content-Type = %q", rec.Header().Get("Content-Type"))
	}
}

func TestView_RichViewers(t *testing.T) {
	text := &model.FileRecord{Name: "txt123", FileName: strPtr("txt123.txt"), MimeType: "text/plain", Size: 5}
	video := &model.FileRecord{Name: "vid123", FileName: strPtr("vid123.mp4"), MimeType: "video/mp4", Size: 10}

	env := newTestEnv(Options{BaseURL: "https://i.example.com"})
	env.files.ResolveFn = resolveRecords(imageRecord(), text, video)
	env.files.ReadTextFn = func(record *model.FileRecord, maxBytes int64) ([]byte, error) {
		if record.Name != "txt123" || maxBytes <= 0 {
			t.Errorf("ReadText(%s, %d)", record.Name, maxBytes)
		}
		return []byte("hello <b>"), nil
	}

	tests := []struct {
		target string
		ua     string
		want   string
	}{
		{"/abcdef", browserUA, `<img src="https://i.example.com/abcdef.png"`},
		{"/abcdef", "Mozilla/5.0 (compatible; Discordbot/2.0; +https://discordapp.com)", `og:image`},
		{"/txt123", browserUA, "hello &lt;b&gt;"},
		{"/vid123", "Mozilla/5.0 (Windows NT 10.0; rv:120.0) Gecko/20100101 Firefox/120.0", "<video"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(env, tt.target, tt.ua)
			if rec.Code != http.StatusOK {
				t.Fatalf("статус %d", rec.Code)
			}
			if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("страница не содержит %q", tt.want)
			}
		})
	}
}

func TestRichViewFor(t *testing.T) {
	tests := map[string]richView{
		"image/png":                 viewImage,
		"image/":                    viewNone,
		"text/plain":                viewText,
		"text/plain; charset=utf-8": viewText,
		"text/html":                 viewNone,
		"video/webm":                viewVideo,
		"application/pdf":           viewNone,
	}
	for mimeType, want := range tests {
		if got := richViewFor(mimeType); got != want {
			t.Errorf("richViewFor(%q) = %d, ожидается %d", mimeType, got, want)
		}
	}
}

func TestAction(t *testing.T) {
	env := newTestEnv(Options{})
	env.files.ResolveFn = resolveRecords(imageRecord(), &model.FileRecord{
		Name: "lnk123", Link: strPtr("https://example.com"), MimeType: model.MIMETypeURIList,
	})
	env.files.ThumbnailFn = func(record *model.FileRecord) ([]byte, error) {
		if record.IsLink() {
			return nil, thumbcache.ErrUnsupported
		}
		return []byte("jpeg-bytes"), nil
	}

	t.Run("info", func(t *testing.T) {
		rec := get(env, "/abcdef/info", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("статус %d", rec.Code)
		}
		var info service.FileInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatal(err)
		}
		if info.Name != "abcdef" || info.FileName == nil || *info.FileName != "abcdef.png" ||
			info.MimeType != "image/png" || info.Size != 4 {
			t.Errorf("неожиданный info: %+v", info)
		}
	})

	t.Run("full", func(t *testing.T) {
		rec := get(env, "/abcdef/full", "")
		if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/abcdef.png" {
			t.Errorf("full: %d %q", rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("thumbnail", func(t *testing.T) {
		rec := get(env, "/abcdef/thumbnail", "")
		if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
			t.Errorf("thumbnail: %d %q", rec.Code, rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != "jpeg-bytes" {
			t.Errorf("тело = %q", rec.Body.String())
		}
	})

	t.Run("thumbnail для ссылки", func(t *testing.T) {
		assertError(t, get(env, "/lnk123/thumbnail", ""), 422, "This file type does not have thumbnails")
	})

	t.Run("неизвестное действие", func(t *testing.T) {
		assertError(t, get(env, "/abcdef/explode", ""), 404, "This action does not exist")
	})

	t.Run("несуществующий файл", func(t *testing.T) {
		assertError(t, get(env, "/zzzzzz/info", ""), 404, "This file does not exist or was deleted")
	})
}

func TestDelete(t *testing.T) {
	env := newTestEnv(Options{})
	env.files.DeleteFn = func(_ context.Context, key string) (*model.FileRecord, error) {
		switch key {
		case "live":
			return imageRecord(), nil
		case "deleted":
			return nil, service.ErrAlreadyDeleted
		case "broken":
			return nil, errors.New("db down")
		default:
			return nil, service.ErrNotFound
		}
	}

	rec := get(env, "/x/delete/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("статус %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["name"] != "abcdef" || body["message"] != "The file was deleted" {
		t.Errorf("неожиданный ответ: %v", body)
	}

	assertError(t, get(env, "/x/delete/unknown", ""), 404, "There is no file with this key")
	assertError(t, get(env, "/x/delete/deleted", ""), 404, "This file was already deleted")
	assertError(t, get(env, "/x/delete/broken", ""), 500, "An internal error occured")
}
