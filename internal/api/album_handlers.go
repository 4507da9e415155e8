package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/album"
	"github.com/kindred-social/kindred/internal/audit"
	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/upload"
	"github.com/kindred-social/kindred/internal/validate"
)

// PhotoSigner issues pre-signed URLs for album photo storage.
// Satisfied by upload.Service.
type PhotoSigner interface {
	GenerateSignedURL(ctx context.Context, req upload.SignedURLRequest) (*upload.SignedURLResponse, error)
	GenerateViewURL(ctx context.Context, key string) (*upload.SignedURLResponse, error)
}

// CreateAlbumBody is the request body for creating or updating an album.
type CreateAlbumBody struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Permission   string   `json:"permission"`
	AllowedUsers []string `json:"allowed_users"`
}

// UploadPhotoBody is the request body for starting a photo upload.
type UploadPhotoBody struct {
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// UploadPhotoResponse carries the pre-signed PUT URL and the updated
// album. The client uploads directly to storage with the URL.
type UploadPhotoResponse struct {
	Upload *upload.SignedURLResponse `json:"upload"`
	Album  *album.Album              `json:"album"`
}

// GrantAccessBody names the access request being granted or denied.
type GrantAccessBody struct {
	RequestID string `json:"request_id"`
}

// AlbumHandlers holds dependencies for album HTTP handlers.
type AlbumHandlers struct {
	svc    *album.Service
	signer PhotoSigner // optional; nil disables photo uploads
	audits audit.Repository
}

// NewAlbumHandlers creates a new AlbumHandlers instance. signer may be
// nil when object storage is not configured.
func NewAlbumHandlers(svc *album.Service, signer PhotoSigner) *AlbumHandlers {
	return &AlbumHandlers{svc: svc, signer: signer}
}

// WithAudit enables audit logging of album access decisions.
func (h *AlbumHandlers) WithAudit(repo audit.Repository) *AlbumHandlers {
	h.audits = repo
	return h
}

// CreateAlbum handles POST /api/albums.
func (h *AlbumHandlers) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	body, ok := h.decodeAlbumBody(w, r)
	if !ok {
		return
	}

	a, err := h.svc.Create(ctx, userID, &album.Album{
		Title:        body.Title,
		Description:  body.Description,
		Permission:   album.Permission(body.Permission),
		AllowedUsers: body.AllowedUsers,
	})
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusCreated, a)
}

// GetAlbum handles GET /api/albums/{id}.
func (h *AlbumHandlers) GetAlbum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	a, err := h.svc.Get(ctx, r.PathValue("id"), userID)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, a)
}

// UpdateAlbum handles PUT /api/albums/{id}.
func (h *AlbumHandlers) UpdateAlbum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	body, ok := h.decodeAlbumBody(w, r)
	if !ok {
		return
	}

	a, err := h.svc.Update(ctx, userID, &album.Album{
		ID:           r.PathValue("id"),
		Title:        body.Title,
		Description:  body.Description,
		Permission:   album.Permission(body.Permission),
		AllowedUsers: body.AllowedUsers,
	})
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, a)
}

// DeleteAlbum handles DELETE /api/albums/{id}.
func (h *AlbumHandlers) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	if err := h.svc.Delete(ctx, r.PathValue("id"), userID); err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

// ListAlbums handles GET /api/albums - albums the caller may view, or
// only their own with ?owned=true.
func (h *AlbumHandlers) ListAlbums(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var (
		albums []album.Album
		err    error
	)
	if r.URL.Query().Get("owned") == "true" {
		albums, err = h.svc.ListOwned(ctx, userID)
	} else {
		albums, err = h.svc.ListVisible(ctx, userID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to list albums", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list albums")
		return
	}
	if albums == nil {
		albums = []album.Album{}
	}
	writeJSON(w, ctx, http.StatusOK, albums)
}

// UploadPhoto handles POST /api/albums/{id}/photos - issues a
// pre-signed PUT URL and records the object key on the album. Only the
// owner may upload.
func (h *AlbumHandlers) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	albumID := r.PathValue("id")

	if h.signer == nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeProviderUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "Photo storage is not configured")
		return
	}

	var body UploadPhotoBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	// Ownership check before any storage work.
	a, err := h.svc.Get(ctx, albumID, userID)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	if a.UserID != userID {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Only the album owner may upload photos")
		return
	}

	signed, err := h.signer.GenerateSignedURL(ctx, upload.SignedURLRequest{
		ContentType: body.ContentType,
		SizeBytes:   body.SizeBytes,
		AlbumID:     albumID,
	})
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	a, err = h.svc.AttachPhoto(ctx, albumID, userID, signed.Key)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}

	writeJSON(w, ctx, http.StatusCreated, UploadPhotoResponse{Upload: signed, Album: a})
}

// ListPhotos handles GET /api/albums/{id}/photos - pre-signed view
// URLs for each photo, subject to the album's permission.
func (h *AlbumHandlers) ListPhotos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	a, err := h.svc.Get(ctx, r.PathValue("id"), userID)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}

	if h.signer == nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeProviderUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "Photo storage is not configured")
		return
	}

	photos := make([]upload.SignedURLResponse, 0, len(a.Images))
	for _, key := range a.Images {
		signed, err := h.signer.GenerateViewURL(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "failed to sign photo view URL", "error", err, "key", key)
			continue
		}
		photos = append(photos, *signed)
	}
	recordAudit(r, h.audits, "album", a.ID, "view_album_photos")
	writeJSON(w, ctx, http.StatusOK, map[string][]upload.SignedURLResponse{"photos": photos})
}

// RequestAccess handles POST /api/albums/{id}/access.
func (h *AlbumHandlers) RequestAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	req, err := h.svc.RequestAccess(ctx, r.PathValue("id"), userID)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	writeJSON(w, ctx, http.StatusCreated, req)
}

// ListAccessRequests handles GET /api/albums/{id}/access - pending
// requests, owner only.
func (h *AlbumHandlers) ListAccessRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	requests, err := h.svc.ListAccessRequests(ctx, r.PathValue("id"), userID)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	if requests == nil {
		requests = []album.AccessRequest{}
	}
	writeJSON(w, ctx, http.StatusOK, requests)
}

// GrantAccess handles POST /api/albums/{id}/access/grant.
func (h *AlbumHandlers) GrantAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var body GrantAccessBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Request ID is required")
		return
	}

	a, err := h.svc.GrantAccess(ctx, body.RequestID, userID)
	if err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	recordAudit(r, h.audits, "album", a.ID, "grant_album_access")
	writeJSON(w, ctx, http.StatusOK, a)
}

// DenyAccess handles POST /api/albums/{id}/access/deny.
func (h *AlbumHandlers) DenyAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var body GrantAccessBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RequestID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Request ID is required")
		return
	}

	if err := h.svc.DenyAccess(ctx, body.RequestID, userID); err != nil {
		h.writeAlbumError(w, r, err)
		return
	}
	recordAudit(r, h.audits, "album", r.PathValue("id"), "deny_album_access")
	writeJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

func (h *AlbumHandlers) decodeAlbumBody(w http.ResponseWriter, r *http.Request) (CreateAlbumBody, bool) {
	var body CreateAlbumBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return body, false
	}
	return body, true
}

// writeAlbumError maps album service errors onto the API envelope.
func (h *AlbumHandlers) writeAlbumError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, album.ErrAlbumNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Album not found")
	case errors.Is(err, album.ErrAccessRequestNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Access request not found")
	case errors.Is(err, album.ErrNotAuthorized), errors.Is(err, album.ErrNotOwner):
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Not authorized")
	case errors.Is(err, album.ErrInvalidPermission):
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidPermission)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidPermission, err.Error())
	case errors.Is(err, album.ErrDuplicateAccessRequest):
		ctx = middleware.SetErrorCode(ctx, ErrCodeConflict)
		WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, validate.ErrEmpty),
		errors.Is(err, validate.ErrStringTooLong),
		errors.Is(err, validate.ErrSQLKeyword),
		errors.Is(err, validate.ErrInvalidCharacters):
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		slog.ErrorContext(ctx, "album operation failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
	}
}

// writeUploadError maps upload validation errors onto the API envelope.
func (h *AlbumHandlers) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, upload.ErrUnsupportedType):
		ctx = middleware.SetErrorCode(ctx, ErrCodeUnsupportedType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnsupportedType, "Only JPEG, PNG and WebP images are accepted")
	case errors.Is(err, upload.ErrFileTooLarge), errors.Is(err, upload.ErrInvalidAlbumID):
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		slog.ErrorContext(ctx, "failed to presign upload", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeProviderUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeProviderUnavailable, "Photo storage is unavailable")
	}
}
