package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/sheet-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/sheet-module/internal/database"
	"github.com/bigkaa/goartstore/sheet-module/internal/domain/access"
	"github.com/bigkaa/goartstore/sheet-module/internal/domain/model"
	"github.com/bigkaa/goartstore/sheet-module/internal/events"
	"github.com/bigkaa/goartstore/sheet-module/internal/repository"
	"github.com/bigkaa/goartstore/sheet-module/internal/service"
	"github.com/bigkaa/goartstore/sheet-module/internal/storage/blobstore"
)

const testMaxFileSize = 64 * 1024

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// withSubject имитирует JWT middleware: sub берётся из заголовка X-Test-Subject.
func withSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.ContextKeySubject, r.Header.Get("X-Test-Subject"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newTestRouter собирает сервисы на SQLite и файловом хранилище во временной директории.
func newTestRouter(t *testing.T) (http.Handler, *blobstore.FSStore) {
	t.Helper()
	logger := testLogger()
	dir := t.TempDir()

	db, err := database.OpenSQLite(context.Background(), filepath.Join(dir, "meta.db"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.MigrateSQLite(db, logger); err != nil {
		t.Fatalf("MigrateSQLite: %v", err)
	}

	store, err := blobstore.NewFSStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	repo := repository.NewSQLiteFileRepository(db)
	publisher := events.NopPublisher{}
	cache := service.NewSchemaCache(16, 0)
	reconciler := service.NewReconciler(repo, store, cache, publisher, 0, 0, logger)
	files := service.NewFileService(repo, store, access.NewGuard(), reconciler, cache, publisher, logger)
	ingest := service.NewIngestService(repo, store, publisher, testMaxFileSize, logger)
	schema := service.NewSchemaService(files, repo, store, cache, publisher, logger)

	h := NewFilesHandler(ingest, files, schema, testMaxFileSize, logger)
	router := chi.NewRouter()
	router.Use(withSubject)
	h.Routes(router)
	return router, store
}

type formFile struct {
	field       string
	name        string
	contentType string
	data        []byte
}

// uploadRequest строит multipart-запрос с указанными файлами.
func uploadRequest(t *testing.T, subject string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		if f.contentType != "" {
			hdr.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-Subject", subject)
	return req
}

func csvFile(name, content string) formFile {
	return formFile{field: "file", name: name, contentType: "text/csv", data: []byte(content)}
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, method, path, subject string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Test-Subject", subject)
	return do(h, req)
}

// errorCode извлекает код ошибки из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ответа не JSON ошибки: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func uploadCSV(t *testing.T, h http.Handler, subject, name, content string) model.FileRecord {
	t.Helper()
	rec := do(h, uploadRequest(t, subject, csvFile(name, content)))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	var fr model.FileRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &fr); err != nil {
		t.Fatalf("upload: %v", err)
	}
	return fr
}

func TestUploadFile_Success(t *testing.T) {
	h, _ := newTestRouter(t)

	fr := uploadCSV(t, h, "alice", "people.csv", "Name,Age\nAda,36\n")

	if fr.OwnerID != "alice" || fr.OriginalName != "people.csv" {
		t.Errorf("неожиданная запись: %+v", fr)
	}
	if fr.Status != model.StatusUploaded || fr.ContentKind != model.ContentKindCSV {
		t.Errorf("status/contentKind: %s / %s", fr.Status, fr.ContentKind)
	}
	if fr.SizeBytes != int64(len("Name,Age\nAda,36\n")) {
		t.Errorf("sizeBytes: %d", fr.SizeBytes)
	}
	if _, err := os.Stat(fr.StoragePath); err != nil {
		t.Errorf("файл по storagePath отсутствует: %v", err)
	}
}

func TestUploadFile_Rejected(t *testing.T) {
	big := bytes.Repeat([]byte("a,b\n"), testMaxFileSize)

	tests := []struct {
		name  string
		files []formFile
		code  string
	}{
		{
			name:  "недопустимый тип",
			files: []formFile{{field: "file", name: "doc.pdf", contentType: "application/pdf", data: []byte("%PDF")}},
			code:  "UNSUPPORTED_MEDIA_TYPE",
		},
		{
			name:  "два файла",
			files: []formFile{csvFile("a.csv", "x\n1\n"), csvFile("b.csv", "y\n2\n")},
			code:  "MULTIPLE_FILES_NOT_ALLOWED",
		},
		{
			name:  "файл в другом поле",
			files: []formFile{{field: "attachment", name: "a.csv", contentType: "text/csv", data: []byte("x\n")}},
			code:  "VALIDATION_ERROR",
		},
		{
			name:  "без файлов",
			files: nil,
			code:  "VALIDATION_ERROR",
		},
		{
			name:  "превышен лимит",
			files: []formFile{{field: "file", name: "big.csv", contentType: "text/csv", data: big}},
			code:  "FILE_TOO_LARGE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := newTestRouter(t)

			rec := do(h, uploadRequest(t, "alice", tt.files...))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("ожидался 400, получен %d: %s", rec.Code, rec.Body.String())
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Errorf("ожидался код %s, получен %s", tt.code, got)
			}

			entries, _ := os.ReadDir(store.DataDir())
			for _, e := range entries {
				if !e.IsDir() {
					t.Errorf("после отказа в хранилище остался файл %s", e.Name())
				}
			}
		})
	}
}

func TestUploadFile_NotMultipart(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/files/upload", strings.NewReader("Name\nAda\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Test-Subject", "alice")
	rec := do(h, req)

	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "VALIDATION_ERROR" {
		t.Errorf("ожидался 400 VALIDATION_ERROR, получен %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFiles_ListGetDelete(t *testing.T) {
	h, _ := newTestRouter(t)

	first := uploadCSV(t, h, "alice", "a.csv", "x\n1\n")
	time.Sleep(2 * time.Millisecond)
	second := uploadCSV(t, h, "alice", "b.csv", "y\n2\n")
	foreign := uploadCSV(t, h, "bob", "c.csv", "z\n3\n")

	rec := get(t, h, http.MethodGet, "/files", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var list []model.FileRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("ожидалось 2 записи, получено %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("ожидался порядок от новых к старым: %s, %s", list[0].ID, list[1].ID)
	}

	if rec := get(t, h, http.MethodGet, "/files/"+first.ID, "alice"); rec.Code != http.StatusOK {
		t.Errorf("get своей записи: %d", rec.Code)
	}

	// Чужая и несуществующая запись неразличимы
	for _, id := range []string{foreign.ID, "00000000-0000-0000-0000-000000000000", "not-a-uuid"} {
		rec := get(t, h, http.MethodGet, "/files/"+id, "alice")
		if rec.Code != http.StatusNotFound || errorCode(t, rec) != "NOT_FOUND" {
			t.Errorf("get %s: ожидался 404 NOT_FOUND, получен %d", id, rec.Code)
		}
		if rec := get(t, h, http.MethodDelete, "/files/"+id, "alice"); rec.Code != http.StatusNotFound {
			t.Errorf("delete %s: ожидался 404, получен %d", id, rec.Code)
		}
	}

	rec = get(t, h, http.MethodDelete, "/files/"+first.ID, "alice")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"message"`) {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(first.StoragePath); !os.IsNotExist(err) {
		t.Errorf("файл должен быть удалён: %v", err)
	}
	if rec := get(t, h, http.MethodGet, "/files/"+first.ID, "alice"); rec.Code != http.StatusNotFound {
		t.Errorf("get после delete: ожидался 404, получен %d", rec.Code)
	}
}

func TestListFiles_EmptyIsArray(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := get(t, h, http.MethodGet, "/files", "nobody")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("ожидался пустой массив, получено %s", body)
	}
}

func TestGetStructure(t *testing.T) {
	h, _ := newTestRouter(t)

	fr := uploadCSV(t, h, "alice", "people.csv", "Name,Age,JoinDate\nAda,36,2020-01-15\n")

	rec := get(t, h, http.MethodGet, "/files/"+fr.ID+"/structure", "alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("structure: %d %s", rec.Code, rec.Body.String())
	}

	var schema model.Schema
	if err := json.Unmarshal(rec.Body.Bytes(), &schema); err != nil {
		t.Fatal(err)
	}
	want := []model.Column{
		{ID: "col_0", Label: "Name", InferredType: model.ColumnString},
		{ID: "col_1", Label: "Age", InferredType: model.ColumnNumber},
		{ID: "col_2", Label: "JoinDate", InferredType: model.ColumnDate},
	}
	if len(schema.Columns) != len(want) {
		t.Fatalf("ожидалось %d столбцов, получено %+v", len(want), schema.Columns)
	}
	for i := range want {
		if schema.Columns[i] != want[i] {
			t.Errorf("столбец %d: получено %+v, ожидалось %+v", i, schema.Columns[i], want[i])
		}
	}

	rec = get(t, h, http.MethodGet, "/files/"+fr.ID, "alice")
	var after model.FileRecord
	_ = json.Unmarshal(rec.Body.Bytes(), &after)
	if after.Status != model.StatusAnalyzed {
		t.Errorf("ожидался статус analyzed, получен %s", after.Status)
	}

	if rec := get(t, h, http.MethodGet, "/files/"+fr.ID+"/structure", "bob"); rec.Code != http.StatusNotFound {
		t.Errorf("structure чужого файла: ожидался 404, получен %d", rec.Code)
	}
}

func TestGetStructure_ReadError(t *testing.T) {
	h, _ := newTestRouter(t)

	// Сигнатура zip без содержимого: файл принимается, но не разбирается
	rec := do(h, uploadRequest(t, "alice", formFile{
		field:       "file",
		name:        "broken.xlsx",
		contentType: model.ContentKindXLSX,
		data:        []byte("PK\x03\x04broken"),
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var fr model.FileRecord
	_ = json.Unmarshal(rec.Body.Bytes(), &fr)

	rec = get(t, h, http.MethodGet, "/files/"+fr.ID+"/structure", "alice")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидался 500, получен %d", rec.Code)
	}
	if got := errorCode(t, rec); got != "READ_ERROR" {
		t.Errorf("ожидался код READ_ERROR, получен %s", got)
	}
}
