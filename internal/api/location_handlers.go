package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/audit"
	"github.com/kindred-social/kindred/internal/block"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/middleware"
)

// UpdateLocationRequest represents the request body for a location update.
type UpdateLocationRequest struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Visibility string  `json:"visibility,omitempty"`
}

// NearbyRequest represents the request body for a proximity query
// anchored at the caller's stored location. Limit is a pointer so that
// an omitted field defaults while an explicit 0 fails validation.
type NearbyRequest struct {
	Limit         *int     `json:"limit,omitempty"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
}

// NearbyByCoordinatesRequest represents the request body for a
// proximity query anchored at an explicit point.
type NearbyByCoordinatesRequest struct {
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Limit         *int     `json:"limit,omitempty"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
}

// requestedLimit resolves an optional limit field: absent means the
// default, any present value is passed through for range validation.
func requestedLimit(limit *int) int {
	if limit == nil {
		return location.DefaultLimit
	}
	return *limit
}

// NearbyResponse is the payload of both proximity endpoints. UserID is
// empty for coordinate-anchored queries.
type NearbyResponse struct {
	UserID       string           `json:"user_id,omitempty"`
	NearestUsers []location.Match `json:"nearest_users"`
	TotalFound   int              `json:"total_found"`
	TimeWindow   string           `json:"time_window"`
}

// LocationHandlers holds dependencies for location HTTP handlers.
type LocationHandlers struct {
	cipher  *location.Cipher
	repo    location.Repository
	engine  *location.Engine
	blocks  block.Repository
	audits  audit.Repository
	metrics *location.Metrics
}

// NewLocationHandlers creates a new LocationHandlers instance.
func NewLocationHandlers(cipher *location.Cipher, repo location.Repository, engine *location.Engine, blocks block.Repository) *LocationHandlers {
	return &LocationHandlers{
		cipher: cipher,
		repo:   repo,
		engine: engine,
		blocks: blocks,
	}
}

// WithAudit enables audit logging of location operations.
func (h *LocationHandlers) WithAudit(repo audit.Repository) *LocationHandlers {
	h.audits = repo
	return h
}

// WithMetrics enables update counting. A nil *Metrics stays a no-op.
func (h *LocationHandlers) WithMetrics(m *location.Metrics) *LocationHandlers {
	h.metrics = m
	return h
}

// UpdateLocation handles POST /api/locations/update - encrypts and
// stores the caller's coordinates.
func (h *LocationHandlers) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UpdateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	if err := location.ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	visibility, err := location.ParseVisibility(req.Visibility)
	if err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidVisibility)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidVisibility, err.Error())
		return
	}

	encrypted, err := h.cipher.Encrypt(req.Latitude, req.Longitude)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encrypt location", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store location")
		return
	}

	if err := h.repo.Upsert(ctx, userID, encrypted, visibility); err != nil {
		slog.ErrorContext(ctx, "failed to upsert location", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to store location")
		return
	}

	h.metrics.RecordUpdate()
	recordAudit(r, h.audits, "location", userID, "update_location")
	writeJSON(w, ctx, http.StatusOK, map[string]string{
		"status":     "success",
		"visibility": string(visibility),
	})
}

// Nearby handles POST /api/locations/nearby - ranks users around the
// caller's stored location. Users with a block in either direction are
// excluded.
func (h *LocationHandlers) Nearby(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req NearbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	exclude, err := h.blocks.RelatedTo(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load block relations", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to find nearby users")
		return
	}

	result, err := h.engine.FindNearest(ctx, location.NearestRequest{
		UserID:        userID,
		Limit:         requestedLimit(req.Limit),
		MaxDistanceKm: req.MaxDistanceKm,
		Exclude:       exclude,
	})
	if err != nil {
		h.writeEngineError(w, ctx, err)
		return
	}

	recordAudit(r, h.audits, "location", userID, "query_nearby")
	writeJSON(w, ctx, http.StatusOK, NearbyResponse{
		UserID:       userID,
		NearestUsers: result.Matches,
		TotalFound:   result.TotalFound,
		TimeWindow:   location.WindowLabel(result.Window),
	})
}

// NearbyByCoordinates handles POST /api/locations/nearby_by_coordinates -
// ranks users around an explicit point.
func (h *LocationHandlers) NearbyByCoordinates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req NearbyByCoordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	exclude, err := h.blocks.RelatedTo(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load block relations", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to find nearby users")
		return
	}
	// The caller's own record must not rank against their query point.
	exclude[userID] = struct{}{}

	result, err := h.engine.FindNearestByCoords(ctx, location.CoordinatesRequest{
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Limit:         requestedLimit(req.Limit),
		MaxDistanceKm: req.MaxDistanceKm,
		Exclude:       exclude,
	})
	if err != nil {
		h.writeEngineError(w, ctx, err)
		return
	}

	recordAudit(r, h.audits, "location", userID, "query_nearby")
	writeJSON(w, ctx, http.StatusOK, NearbyResponse{
		NearestUsers: result.Matches,
		TotalFound:   result.TotalFound,
		TimeWindow:   location.WindowLabel(result.Window),
	})
}

// writeEngineError maps proximity engine errors onto the API envelope.
func (h *LocationHandlers) writeEngineError(w http.ResponseWriter, ctx context.Context, err error) {
	switch {
	case errors.Is(err, location.ErrInvalidLimit):
		ctx = middleware.SetErrorCode(ctx, ErrCodeInvalidLimit)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidLimit, "Limit must be between 1 and 100")
	case errors.Is(err, location.ErrInvalidCoordinate):
		ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, location.ErrLocationNotFound):
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User location not found or is older than 7 days")
	case errors.Is(err, location.ErrDecryptFailed):
		slog.ErrorContext(ctx, "decryption failed during proximity query", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Decryption failed")
	default:
		slog.ErrorContext(ctx, "proximity query failed", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to find nearby users")
	}
}
