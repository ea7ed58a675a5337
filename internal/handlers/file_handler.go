package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"standup-desk/internal/response"
	"standup-desk/internal/service"
)

// multipartMemory is the part of an upload kept in memory; the rest spills to temp files
const multipartMemory = 8 << 20

// FileHandler handles attachment upload and download
type FileHandler struct {
	files   *service.FileService
	maxBody int64
}

// NewFileHandler creates a new file handler. maxBody bounds a whole upload request.
func NewFileHandler(files *service.FileService, maxBody int64) *FileHandler {
	return &FileHandler{files: files, maxBody: maxBody}
}

// parentType accepts "standup", "blocker" and their plurals
func parentType(r *http.Request) string {
	return strings.TrimSuffix(strings.ToLower(r.PathValue("parentType")), "s")
}

// Upload attaches files to a standup or blocker owned by the caller
// @Summary Upload files
// @Description Multipart upload in the "files" field. Limits: size per file, files per parent and an extension allowlist.
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param parentType path string true "standup or blocker"
// @Param parentId path int true "Parent ID"
// @Param files formData file true "Files"
// @Success 201 {object} response.Envelope{data=[]models.File} "Stored files"
// @Failure 400 {object} response.Envelope "Limit exceeded or file type not allowed"
// @Failure 409 {object} response.Envelope "Standup already submitted"
// @Router /files/{parentType}/{parentId} [post]
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	parentID, err := pathID(r, "parentId")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, r, invalidParam("files", "upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes"))
			return
		}
		response.Error(w, r, invalidParam("files", "must be a multipart form"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("Failed to remove multipart temp files", "error", err)
		}
	}()

	headers := r.MultipartForm.File["files"]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, service.Upload{
			Filename:    fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Open:        openPart(fh),
		})
	}

	stored, err := h.files.Upload(r.Context(), actor, parentType(r), parentID, uploads)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.Created(w, stored, "files uploaded")
}

func openPart(fh *multipart.FileHeader) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return fh.Open()
	}
}

// List returns the attachments of a standup or blocker
// @Summary List files
// @Tags Files
// @Produce json
// @Security BearerAuth
// @Param parentType path string true "standup or blocker"
// @Param parentId path int true "Parent ID"
// @Success 200 {object} response.Envelope{data=[]models.File} "Files"
// @Failure 404 {object} response.Envelope "Parent not found"
// @Router /files/{parentType}/{parentId} [get]
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	parentID, err := pathID(r, "parentId")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	files, err := h.files.List(r.Context(), actor, parentType(r), parentID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	response.OK(w, files, "")
}

// Download streams one attachment
// @Summary Download file
// @Tags Files
// @Produce octet-stream
// @Security BearerAuth
// @Param id path int true "File ID"
// @Success 200 {file} file "File content"
// @Failure 404 {object} response.Envelope "File not found"
// @Router /files/{id}/download [get]
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	file, rc, err := h.files.Download(r.Context(), actor, id)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("File download interrupted", "file_id", file.ID, "error", err)
	}
}
