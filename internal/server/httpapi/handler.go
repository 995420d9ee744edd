package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/logging"
	"github.com/filedrop/filedrop/internal/server/accounts"
	"github.com/filedrop/filedrop/internal/server/archive"
	"github.com/filedrop/filedrop/internal/server/auth"
	"github.com/filedrop/filedrop/internal/server/files"
	"github.com/filedrop/filedrop/internal/server/policy"
)

// maxMultipartMemory is the in-memory threshold for multipart parsing;
// larger parts spill to temp files.
const maxMultipartMemory = 32 << 20

// Handler exposes the drop service over HTTP.
type Handler struct {
	accounts      *accounts.Service
	files         *files.Service
	archive       *archive.Assembler
	policy        *policy.Policy
	secretKey     []byte
	tokenValidity time.Duration
	logger        logging.Logger
}

func NewHandler(
	acc *accounts.Service,
	fs *files.Service,
	arc *archive.Assembler,
	pol *policy.Policy,
	secretKey []byte,
	tokenValidity time.Duration,
	logger logging.Logger,
) *Handler {
	return &Handler{
		accounts:      acc,
		files:         fs,
		archive:       arc,
		policy:        pol,
		secretKey:     secretKey,
		tokenValidity: tokenValidity,
		logger:        logger.With("component", "httpapi"),
	}
}

// Register mounts all API endpoints on the given router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/v1/upload", h.handleUpload)
	r.Post("/api/v1/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/api/v1/files", h.handleList)
		r.Get("/api/v1/files/{id}", h.handleDownload)
		r.Get("/api/v1/archive", h.handleArchive)
	})

	r.Get("/health/live", h.handleHealthLive)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type fileErrorJSON struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type fileInfoJSON struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	UploadedAt    time.Time `json:"uploaded_at"`
	DownloadCount int64     `json:"download_count"`
}

type statsJSON struct {
	TotalFiles     int64 `json:"total_files"`
	TotalBytes     int64 `json:"total_bytes"`
	TotalDownloads int64 `json:"total_downloads"`
}

type uploadResponse struct {
	// Credentials are echoed exactly once so the uploader can note them
	// down; the server keeps only the salted verifier.
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	Token         string          `json:"token"`
	UploadedCount int             `json:"uploaded_count"`
	TotalBytes    int64           `json:"total_bytes"`
	Errors        []fileErrorJSON `json:"errors,omitempty"`
}

type loginResponse struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

type listResponse struct {
	Files []fileInfoJSON `json:"files"`
	Stats statsJSON      `json:"stats"`
}

// handleUpload claims or authenticates the credential pair and runs the
// upload batch. Per-file failures are reported in the response body, not as
// an HTTP error.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: bad multipart form: %w", common.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	username := r.FormValue("username")
	password := r.FormValue("password")
	replace, _ := strconv.ParseBool(r.FormValue("replace_existing"))

	if err := h.policy.CheckCredentials(username, password); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.accounts.CreateOrAuthenticate(r.Context(), username, password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	batch, closeBatch, err := h.multipartBatch(r.MultipartForm.File["files"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeBatch()

	res, err := h.files.Upload(r.Context(), account, batch, replace)
	if err != nil && res == nil {
		h.writeError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(account.ID, account.Username, h.secretKey, h.tokenValidity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := uploadResponse{
		Username:      account.Username,
		Password:      password,
		Token:         token,
		UploadedCount: res.Uploaded,
		TotalBytes:    res.TotalBytes,
	}
	for _, fe := range res.Failed {
		resp.Errors = append(resp.Errors, fileErrorJSON{Name: fe.Name, Reason: fe.Reason})
	}

	status := http.StatusCreated
	if res.Uploaded == 0 {
		// Every member failed; the batch result still explains each one.
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, resp)
}

// multipartBatch adapts multipart file headers to upload batch members.
// Parts without a filename are skipped, matching browser form behavior.
func (h *Handler) multipartBatch(headers []*multipart.FileHeader) ([]files.UploadFile, func(), error) {
	var batch []files.UploadFile
	var opened []multipart.File

	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, hdr := range headers {
		if hdr.Filename == "" {
			continue
		}
		f, err := hdr.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: open part %s: %w", common.ErrValidation, hdr.Filename, err)
		}
		opened = append(opened, f)
		batch = append(batch, files.UploadFile{
			Name: hdr.Filename,
			Size: hdr.Size,
			Data: f,
		})
	}

	return batch, closeAll, nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: bad request body: %w", common.ErrValidation, err))
		return
	}

	if err := h.policy.CheckCredentials(req.Username, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, err := auth.GenerateToken(account.ID, account.Username, h.secretKey, h.tokenValidity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, loginResponse{Username: account.Username, Token: token})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	recs, err := h.files.List(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	stats, err := h.files.Stats(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := listResponse{
		Files: make([]fileInfoJSON, 0, len(recs)),
		Stats: statsJSON{
			TotalFiles:     stats.TotalFiles,
			TotalBytes:     stats.TotalBytes,
			TotalDownloads: stats.TotalDownloads,
		},
	}
	for _, rec := range recs {
		resp.Files = append(resp.Files, fileInfoJSON{
			ID:            rec.ID,
			Name:          rec.OriginalName,
			Size:          rec.Size,
			UploadedAt:    rec.UploadedAt,
			DownloadCount: rec.DownloadCount,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	fileID := chi.URLParam(r, "id")

	rec, rc, err := h.files.Open(r.Context(), claims.AccountID, fileID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn(r.Context(), "download aborted", "file_id", fileID, "error", err.Error())
	}
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", claims.Username+"_files.zip"))

	// The assembler checks for members before the first byte, so the
	// not-found path can still produce a clean 404.
	if _, err := h.archive.Write(r.Context(), claims.AccountID, w); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			w.Header().Del("Content-Type")
			w.Header().Del("Content-Disposition")
			h.writeError(w, r, err)
			return
		}
		h.logger.Warn(r.Context(), "archive aborted", "account_id", claims.AccountID, "error", err.Error())
	}
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error(context.Background(), "response encode failed", "error", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP statuses. Credential failures all
// collapse into one 401 so usernames stay non-enumerable.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, common.ErrUnauthorized), errors.Is(err, common.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, common.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrCapacity):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
		h.logger.Error(r.Context(), "internal error", "error", err.Error())
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, status, errorResponse{Error: msg})
}
