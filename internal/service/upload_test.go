package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"github.com/sinnlosername/cpsu/internal/domain/model"
	"github.com/sinnlosername/cpsu/internal/repository"
	"github.com/sinnlosername/cpsu/internal/storage/filestore"
)

const testMaxFileSize = 1024 * 1024

var testUser = &model.User{UserID: 7, Name: "alice", Key: "alice-key"}

// newTestUploadService создаёт сервис поверх временной директории.
func newTestUploadService(t *testing.T, repo *mockFileRepo) (*UploadService, *filestore.FileStore) {
	t.Helper()
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	names := NewNameAllocator(repo, 6, 10)
	return NewUploadService(repo, store, names, testMaxFileSize, 5, testLogger()), store
}

// dataDirFiles возвращает имена всех файлов директории данных (включая скрытые).
func dataDirFiles(t *testing.T, store *filestore.FileStore) []string {
	t.Helper()
	entries, err := os.ReadDir(store.DataDir())
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// assertUploadError проверяет код и сообщение ошибки загрузки.
func assertUploadError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var uerr *UploadError
	if !errors.As(err, &uerr) {
		t.Fatalf("ожидалась *UploadError, получено: %v", err)
	}
	if uerr.StatusCode != status {
		t.Errorf("StatusCode = %d, ожидается %d", uerr.StatusCode, status)
	}
	if message != "" && uerr.Message != message {
		t.Errorf("Message = %q, ожидается %q", uerr.Message, message)
	}
}

func simpleRequest(body string, contentType string) *UploadRequest {
	return &UploadRequest{
		Body:          strings.NewReader(body),
		ContentLength: int64(len(body)),
		ContentType:   contentType,
	}
}

func TestProcess_UnknownProcessor(t *testing.T) {
	svc, _ := newTestUploadService(t, &mockFileRepo{})

	_, err := svc.Process(context.Background(), "ftp", simpleRequest("x", "text/plain"), testUser)
	assertUploadError(t, err, http.StatusBadRequest, "Provided processor could not be found")
}

func TestSimple_Success(t *testing.T) {
	repo := &mockFileRepo{}
	svc, store := newTestUploadService(t, repo)

	result, err := svc.Process(context.Background(), "simple", simpleRequest("hello world", "text/plain; charset=utf-8"), testUser)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !IsValidName(result.Name) || len(result.AccessKey) != 32 {
		t.Errorf("некорректный результат: %+v", result)
	}

	records := repo.records()
	if len(records) != 1 {
		t.Fatalf("вставлено записей: %d, ожидается 1", len(records))
	}
	rec := records[0]
	if rec.StoredName() != result.Name+".txt" {
		t.Errorf("FileName = %q, ожидается %s.txt", rec.StoredName(), result.Name)
	}
	if rec.Size != 11 || rec.Processor != model.ProcessorSimple || rec.UserID != 7 {
		t.Errorf("неожиданная запись: %+v", rec)
	}
	if rec.MimeType != "text/plain; charset=utf-8" {
		t.Errorf("MimeType = %q", rec.MimeType)
	}
	if rec.AccessKey != result.AccessKey {
		t.Error("ключ в ответе и в записи различаются")
	}

	data, err := store.ReadAll(rec.StoredName(), 1024)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("содержимое = %q", data)
	}
}

func TestSimple_SizeBoundary(t *testing.T) {
	repo := &mockFileRepo{}
	svc, _ := newTestUploadService(t, repo)

	exact := strings.Repeat("a", testMaxFileSize)
	if _, err := svc.Process(context.Background(), "simple", simpleRequest(exact, "text/plain"), testUser); err != nil {
		t.Errorf("файл ровно максимального размера должен приниматься: %v", err)
	}

	over := &UploadRequest{
		Body:          strings.NewReader(exact + "a"),
		ContentLength: testMaxFileSize + 1,
		ContentType:   "text/plain",
	}
	_, err := svc.Process(context.Background(), "simple", over, testUser)
	assertUploadError(t, err, http.StatusRequestEntityTooLarge,
		"Upload exceeds maximum file size or content length is missing")
}

func TestSimple_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     *UploadRequest
		status  int
		message string
	}{
		{
			name:    "нет Content-Length",
			req:     &UploadRequest{Body: strings.NewReader("x"), ContentLength: -1, ContentType: "text/plain"},
			status:  http.StatusRequestEntityTooLarge,
			message: "Upload exceeds maximum file size or content length is missing",
		},
		{
			name:    "нет Content-Type",
			req:     simpleRequest("x", ""),
			status:  http.StatusBadRequest,
			message: "Content type is missing",
		},
		{
			name:    "неизвестный Content-Type",
			req:     simpleRequest("x", "foo/bar"),
			status:  http.StatusUnprocessableEntity,
			message: "Unable to resolve extension for content type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockFileRepo{}
			svc, store := newTestUploadService(t, repo)

			_, err := svc.Process(context.Background(), "simple", tt.req, testUser)
			assertUploadError(t, err, tt.status, tt.message)

			if len(repo.records()) != 0 {
				t.Error("запись не должна создаваться")
			}
			if files := dataDirFiles(t, store); len(files) != 0 {
				t.Errorf("на диске не должно быть файлов: %v", files)
			}
		})
	}
}

func TestSimple_ShortBody(t *testing.T) {
	repo := &mockFileRepo{}
	svc, store := newTestUploadService(t, repo)

	req := &UploadRequest{
		Body:          strings.NewReader("short"),
		ContentLength: 100,
		ContentType:   "text/plain",
	}
	_, err := svc.Process(context.Background(), "simple", req, testUser)
	assertUploadError(t, err, http.StatusBadRequest, "Upload was interrupted")

	if len(repo.records()) != 0 {
		t.Error("запись не должна создаваться")
	}
	if files := dataDirFiles(t, store); len(files) != 0 {
		t.Errorf("на диске не должно быть файлов: %v", files)
	}
}

func TestSimple_RetryOnConflict(t *testing.T) {
	attempts := 0
	repo := &mockFileRepo{}
	repo.InsertFn = func(_ context.Context, _ *model.FileRecord) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("%w: file_name_unique", repository.ErrConflict)
		}
		return nil
	}
	svc, store := newTestUploadService(t, repo)

	result, err := svc.Process(context.Background(), "simple", simpleRequest("data", "text/plain"), testUser)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if attempts != 2 {
		t.Errorf("попыток вставки: %d, ожидается 2", attempts)
	}

	files := dataDirFiles(t, store)
	if len(files) != 1 || files[0] != result.Name+".txt" {
		t.Errorf("на диске ожидается только %s.txt, найдено: %v", result.Name, files)
	}
}

func TestSimple_InsertFailureRemovesFile(t *testing.T) {
	repo := &mockFileRepo{
		InsertFn: func(_ context.Context, _ *model.FileRecord) error {
			return errors.New("БД недоступна")
		},
	}
	svc, store := newTestUploadService(t, repo)

	_, err := svc.Process(context.Background(), "simple", simpleRequest("data", "text/plain"), testUser)
	assertUploadError(t, err, http.StatusInternalServerError, "")

	if files := dataDirFiles(t, store); len(files) != 0 {
		t.Errorf("файл должен быть удалён после ошибки вставки: %v", files)
	}
}

func TestSimple_ExhaustedConflicts(t *testing.T) {
	repo := &mockFileRepo{
		InsertFn: func(_ context.Context, _ *model.FileRecord) error {
			return repository.ErrConflict
		},
	}
	svc, store := newTestUploadService(t, repo)

	_, err := svc.Process(context.Background(), "simple", simpleRequest("data", "text/plain"), testUser)
	assertUploadError(t, err, http.StatusServiceUnavailable, "")

	if files := dataDirFiles(t, store); len(files) != 0 {
		t.Errorf("на диске не должно остаться файлов: %v", files)
	}
}

// multipartPart — часть multipart-тела для тестов.
type multipartPart struct {
	field       string
	contentType string
	body        []byte
}

// buildMultipart собирает multipart/form-data тело.
func buildMultipart(t *testing.T, parts ...multipartPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="upload"`, p.field))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := pw.Write(p.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func shareXRequest(body *bytes.Buffer, contentType string) *UploadRequest {
	return &UploadRequest{Body: body, ContentLength: int64(body.Len()), ContentType: contentType}
}

func TestShareX_File(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"маленькая часть в памяти", 1024},
		{"большая часть во временном файле", 300 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockFileRepo{}
			svc, store := newTestUploadService(t, repo)

			content := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, tt.size/4)
			body, ct := buildMultipart(t, multipartPart{field: "files", contentType: "image/png", body: content})

			result, err := svc.Process(context.Background(), "sharex", shareXRequest(body, ct), testUser)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}

			records := repo.records()
			if len(records) != 1 {
				t.Fatalf("вставлено записей: %d, ожидается 1", len(records))
			}
			rec := records[0]
			if rec.StoredName() != result.Name+".png" || rec.Processor != model.ProcessorShareX {
				t.Errorf("неожиданная запись: %+v", rec)
			}
			if rec.Size != int64(len(content)) {
				t.Errorf("Size = %d, ожидается %d", rec.Size, len(content))
			}

			files := dataDirFiles(t, store)
			if len(files) != 1 {
				t.Errorf("на диске ожидается один файл без временных: %v", files)
			}
			data, err := store.ReadAll(rec.StoredName(), int64(len(content))+1)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(data, content) {
				t.Error("содержимое файла не совпадает")
			}
		})
	}
}

func TestShareX_URL(t *testing.T) {
	repo := &mockFileRepo{}
	svc, store := newTestUploadService(t, repo)

	body, ct := buildMultipart(t, multipartPart{field: "url", body: []byte("  https://example.com/some/page?q=1  \n")})

	result, err := svc.Process(context.Background(), "sharex", shareXRequest(body, ct), testUser)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	records := repo.records()
	if len(records) != 1 {
		t.Fatalf("вставлено записей: %d, ожидается 1", len(records))
	}
	rec := records[0]
	if rec.Name != result.Name || rec.FileName != nil {
		t.Errorf("запись ссылки не должна иметь FileName: %+v", rec)
	}
	if rec.Link == nil || *rec.Link != "https://example.com/some/page?q=1" {
		t.Errorf("Link = %v", rec.Link)
	}
	if rec.MimeType != "text/uri-list" {
		t.Errorf("MimeType = %q, ожидается text/uri-list", rec.MimeType)
	}
	if rec.Size != 38 {
		t.Errorf("Size = %d, ожидается 38 (байт части)", rec.Size)
	}
	if files := dataDirFiles(t, store); len(files) != 0 {
		t.Errorf("ссылка не должна создавать файлов: %v", files)
	}
}

func TestShareX_Errors(t *testing.T) {
	tooLong := []byte("https://example.com/" + strings.Repeat("a", 2048))

	tests := []struct {
		name    string
		parts   []multipartPart
		status  int
		message string
	}{
		{
			name:    "нет частей",
			parts:   nil,
			status:  http.StatusBadRequest,
			message: "No request parts found",
		},
		{
			name:    "недопустимое поле",
			parts:   []multipartPart{{field: "image", contentType: "image/png", body: []byte("x")}},
			status:  http.StatusBadRequest,
			message: "Multipart body may only contain 'files' or 'url' field",
		},
		{
			name: "две части",
			parts: []multipartPart{
				{field: "files", contentType: "image/png", body: []byte("x")},
				{field: "url", body: []byte("https://example.com")},
			},
			status:  http.StatusRequestEntityTooLarge,
			message: "The multipart body may only have one part",
		},
		{
			name:    "нет типа у части",
			parts:   []multipartPart{{field: "files", body: []byte("x")}},
			status:  http.StatusBadRequest,
			message: "Missing content type on part",
		},
		{
			name:    "неизвестный тип части",
			parts:   []multipartPart{{field: "files", contentType: "foo/bar", body: []byte("x")}},
			status:  http.StatusUnprocessableEntity,
			message: "Unknown content type on part",
		},
		{
			name:    "пустая ссылка",
			parts:   []multipartPart{{field: "url", body: nil}},
			status:  http.StatusBadRequest,
			message: "URL length must be between 1 and 2048 characters",
		},
		{
			name:    "слишком длинная ссылка",
			parts:   []multipartPart{{field: "url", body: tooLong}},
			status:  http.StatusBadRequest,
			message: "URL length must be between 1 and 2048 characters",
		},
		{
			name:    "не URL",
			parts:   []multipartPart{{field: "url", body: []byte("not a url")}},
			status:  http.StatusBadRequest,
			message: "Not a valid url",
		},
		{
			name:    "относительный URL",
			parts:   []multipartPart{{field: "url", body: []byte("/relative/path")}},
			status:  http.StatusBadRequest,
			message: "Not a valid url",
		},
		{
			name:    "часть больше предела",
			parts:   []multipartPart{{field: "files", contentType: "image/png", body: make([]byte, testMaxFileSize+1)}},
			status:  http.StatusRequestEntityTooLarge,
			message: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockFileRepo{}
			svc, store := newTestUploadService(t, repo)

			body, ct := buildMultipart(t, tt.parts...)
			_, err := svc.Process(context.Background(), "sharex", shareXRequest(body, ct), testUser)
			assertUploadError(t, err, tt.status, tt.message)

			if len(repo.records()) != 0 {
				t.Error("запись не должна создаваться")
			}
			if files := dataDirFiles(t, store); len(files) != 0 {
				t.Errorf("на диске не должно остаться файлов: %v", files)
			}
		})
	}
}

func TestShareX_NotMultipart(t *testing.T) {
	svc, _ := newTestUploadService(t, &mockFileRepo{})

	_, err := svc.Process(context.Background(), "sharex", simpleRequest("x", "text/plain"), testUser)
	assertUploadError(t, err, http.StatusBadRequest, "Expected multipart, found text/plain")
}

func TestShareX_BrokenBody(t *testing.T) {
	svc, store := newTestUploadService(t, &mockFileRepo{})

	body := bytes.NewBufferString("--xyz\r\nContent-Disposition: form-data; name=\"files\"\r\nContent-Type: image/png\r\n\r\ntruncated")
	req := &UploadRequest{Body: body, ContentLength: int64(body.Len()), ContentType: "multipart/form-data; boundary=xyz"}

	_, err := svc.Process(context.Background(), "sharex", req, testUser)
	assertUploadError(t, err, http.StatusInternalServerError, "Unknown error while reading body")

	if files := dataDirFiles(t, store); len(files) != 0 {
		t.Errorf("на диске не должно остаться файлов: %v", files)
	}
}

// brokenReader отдаёт часть данных и затем обрывается, как разорванное соединение.
type brokenReader struct {
	sent bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset by peer")
	}
	r.sent = true
	return copy(p, "part"), nil
}

func TestSimple_BrokenStream(t *testing.T) {
	repo := &mockFileRepo{}
	svc, store := newTestUploadService(t, repo)

	req := &UploadRequest{Body: &brokenReader{}, ContentLength: 100, ContentType: "text/plain"}
	_, err := svc.Process(context.Background(), "simple", req, testUser)
	assertUploadError(t, err, http.StatusBadRequest, "Upload was interrupted")

	if files := dataDirFiles(t, store); len(files) != 0 {
		t.Errorf("на диске не должно быть файлов: %v", files)
	}
}

// TestSimple_DataDirUnavailable — сбой директории данных является ошибкой сервера.
func TestSimple_DataDirUnavailable(t *testing.T) {
	repo := &mockFileRepo{}
	svc, store := newTestUploadService(t, repo)

	if err := os.RemoveAll(store.DataDir()); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Process(context.Background(), "simple", simpleRequest("hello", "text/plain"), testUser)
	assertUploadError(t, err, http.StatusInternalServerError, "An unknown error occurred")

	if len(repo.records()) != 0 {
		t.Error("запись не должна создаваться")
	}
}
