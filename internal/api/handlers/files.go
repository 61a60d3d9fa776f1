// files.go — HTTP handlers файловых операций Sheet Module.
// Upload, List, Get, Structure, Delete.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/sheet-module/internal/api/errors"
	"github.com/bigkaa/goartstore/sheet-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/sheet-module/internal/service"
)

// multipartMemory — часть multipart-формы, которая держится в памяти.
// Остальное сбрасывается во временные файлы.
const multipartMemory = 8 << 20

// multipartOverhead — запас на заголовки и границы частей сверх лимита файла.
const multipartOverhead = 1 << 20

// uploadField — имя поля multipart-формы с файлом.
const uploadField = "file"

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	ingest      *service.IngestService
	files       *service.FileService
	schema      *service.SchemaService
	maxFileSize int64
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	ingest *service.IngestService,
	files *service.FileService,
	schema *service.SchemaService,
	maxFileSize int64,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		ingest:      ingest,
		files:       files,
		schema:      schema,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// Routes монтирует файловые endpoints на роутер.
func (h *FilesHandler) Routes(r chi.Router) {
	r.Post("/files/upload", h.UploadFile)
	r.Get("/files", h.ListFiles)
	r.Get("/files/{fileID}", h.GetFile)
	r.Get("/files/{fileID}/structure", h.GetStructure)
	r.Delete("/files/{fileID}", h.DeleteFile)
}

// UploadFile обрабатывает POST /files/upload.
// Multipart form: ровно один файл в поле file.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	owner := middleware.SubjectFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, "Размер файла превышает лимит")
			return
		}
		apierrors.ValidationError(w, "Ошибка разбора multipart: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	header, err := singleFile(r.MultipartForm)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		h.logger.Error("Ошибка открытия части multipart",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
		return
	}
	defer file.Close()

	rec, err := h.ingest.Upload(r.Context(), service.UploadParams{
		OwnerID:      owner,
		Reader:       file,
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// singleFile возвращает единственный файл формы.
// Файлы в любых полях учитываются при подсчёте.
func singleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	total := 0
	for _, headers := range form.File {
		total += len(headers)
	}
	if total > 1 {
		return nil, service.ErrMultipleFilesNotAllowed
	}
	headers := form.File[uploadField]
	if len(headers) == 0 {
		return nil, service.ErrMissingFile
	}
	return headers[0], nil
}

// ListFiles обрабатывает GET /files.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	records, err := h.files.ListFiles(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetFile обрабатывает GET /files/{fileID}.
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.files.GetFile(r.Context(), middleware.SubjectFromContext(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetStructure обрабатывает GET /files/{fileID}/structure.
func (h *FilesHandler) GetStructure(w http.ResponseWriter, r *http.Request) {
	schema, err := h.schema.InferSchema(r.Context(), middleware.SubjectFromContext(r.Context()), chi.URLParam(r, "fileID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// DeleteFile обрабатывает DELETE /files/{fileID}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.files.DeleteFile(r.Context(), middleware.SubjectFromContext(r.Context()), chi.URLParam(r, "fileID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Файл удалён"})
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
func (h *FilesHandler) writeServiceError(w http.ResponseWriter, err error) {
	var readErr *service.ReadError

	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Файл не найден")
	case errors.Is(err, service.ErrUnsupportedMediaType):
		apierrors.UnsupportedMediaType(w, err.Error())
	case errors.Is(err, service.ErrPayloadTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrMultipleFilesNotAllowed):
		apierrors.MultipleFilesNotAllowed(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.As(err, &readErr):
		apierrors.ReadError(w, readErr.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// writeJSON сериализует v в тело ответа.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
