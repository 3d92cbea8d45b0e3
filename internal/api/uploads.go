package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/cadence/internal/ingest"
)

const (
	uploadDir      = "uploads"
	maxUploadBytes = 50 << 20 // 50 MB
)

// safeName validates that the filename is a plain name (no path separators,
// no traversal).
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return cleaned, nil
}

// uploadPath returns the source-relative path a recording is stored under.
// An explicit path form value wins over the uploads directory.
func uploadPath(explicit, filename string) (string, error) {
	if explicit != "" {
		p := path.Clean(strings.TrimPrefix(filepath.ToSlash(explicit), "/"))
		if p == "." || p == ".." || strings.HasPrefix(p, "../") {
			return "", fmt.Errorf("invalid path: %s", explicit)
		}
		return p, nil
	}
	name, err := safeName(filename)
	if err != nil {
		return "", err
	}
	return path.Join(uploadDir, name), nil
}

// Upload handles POST /api/uploads (multipart/form-data, field "file").
//
//	@Summary		Upload a recording and import it
//	@Tags			imports
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"FIT recording"
//	@Param			path	formData	string	false	"Source-relative destination"
//	@Success		201		{object}	UploadResponse
//	@Success		200		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/uploads [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	rel, err := uploadPath(r.FormValue("path"), header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	res, err := h.svc.Upload(r.Context(), rel, data)
	if err != nil {
		writeError(w, "upload", err)
		return
	}
	status := http.StatusOK
	if res.Outcome == ingest.OutcomeImported {
		status = http.StatusCreated
	}
	writeJSON(w, status, UploadResponse{Path: rel, Result: *res})
}
