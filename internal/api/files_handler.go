package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tmpshare/internal/middleware"
	"tmpshare/internal/repository"
	"tmpshare/internal/service"
)

// multipartOverhead 是 multipart 边界与表单头的预留空间。
const multipartOverhead int64 = 1 << 20

// FileHandler 提供上传、列表、下载与删除端点。
type FileHandler struct {
	files  *service.FileService
	logger *zap.Logger
}

func NewFileHandler(files *service.FileService, logger *zap.Logger) *FileHandler {
	return &FileHandler{files: files, logger: logger.Named("api")}
}

func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/files", h.List)
	r.Get("/files/{id}", h.Download)
	r.Delete("/files/{id}", h.Delete)
}

type uploadResponse struct {
	File    *repository.FileRecord `json:"file"`
	FileURL string                 `json:"fileUrl"`
	Message string                 `json:"message"`
}

// Upload 从 multipart 请求中流式读取 file 字段，不在内存或临时文件中缓冲。
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())
	if identity == nil {
		writeServiceError(w, r, h.logger, service.ErrUnauthenticated)
		return
	}

	limit := h.files.MaxUploadBytes() + multipartOverhead
	if r.ContentLength > limit {
		writeServiceError(w, r, h.logger, service.ErrTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			writeError(w, http.StatusBadRequest, "No file provided")
			return
		}
		if err != nil {
			if isMaxBytes(err) {
				writeServiceError(w, r, h.logger, service.ErrTooLarge)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		record, err := h.files.Upload(r.Context(), identity, service.UploadInput{
			Filename: part.FileName(),
			Size:     -1,
			Reader:   bodyLimitReader{r: part},
		})
		part.Close()
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}

		record.Owner = &repository.FileOwner{Email: identity.Email, Name: identity.Name}
		writeJSON(w, http.StatusOK, uploadResponse{
			File:    record,
			FileURL: "/files/" + record.ID,
			Message: "File uploaded successfully",
		})
		return
	}
}

type listResponse struct {
	Files   []repository.FileRecord `json:"files"`
	IsAdmin bool                    `json:"isAdmin"`
}

// List 返回调用者可见的文件，未登录时返回空列表。
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, isAdmin, err := h.files.List(r.Context(), middleware.IdentityFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Files: files, IsAdmin: isAdmin})
}

// Download 以附件形式输出文件内容，?linkId= 时按分享链接授权。
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	linkID := r.URL.Query().Get("linkId")

	d, err := h.files.Download(r.Context(), middleware.IdentityFrom(r.Context()), id, linkID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer d.Content.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition(d.File.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(d.File.SizeBytes, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, d.Content); err != nil {
		// 客户端可能已断开，无法再写入错误响应
		h.logger.Info("download interrupted", zap.String("file_id", d.File.ID), zap.Error(err))
	}
}

// Delete 删除文件，仅所有者或管理员。
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.files.Delete(r.Context(), middleware.IdentityFrom(r.Context()), id); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// bodyLimitReader 把请求体超限转换为 service.ErrTooLarge。
type bodyLimitReader struct {
	r io.Reader
}

func (b bodyLimitReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && isMaxBytes(err) {
		return n, service.ErrTooLarge
	}
	return n, err
}

func isMaxBytes(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
