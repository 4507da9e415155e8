package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/audit"
	"github.com/kindred-social/kindred/internal/block"
	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/profile"
)

// BlockUserBody is the request body for blocking a user.
type BlockUserBody struct {
	BlockedUserID string `json:"blocked_user_id"`
}

// BlockResponse is one block entry with the blocked user's profile
// joined in.
type BlockResponse struct {
	block.Block
	Profile profile.Core `json:"profile"`
}

// BlockHandlers holds dependencies for block HTTP handlers.
type BlockHandlers struct {
	blocks   block.Repository
	profiles profile.Repository
	audits   audit.Repository
}

// NewBlockHandlers creates a new BlockHandlers instance.
func NewBlockHandlers(blocks block.Repository, profiles profile.Repository) *BlockHandlers {
	return &BlockHandlers{blocks: blocks, profiles: profiles}
}

// WithAudit enables audit logging of block operations.
func (h *BlockHandlers) WithAudit(repo audit.Repository) *BlockHandlers {
	h.audits = repo
	return h
}

// BlockUser handles POST /api/blocks. Blocking is idempotent.
func (h *BlockHandlers) BlockUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var body BlockUserBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BlockedUserID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Blocked user ID is required")
		return
	}

	if err := h.blocks.Block(ctx, userID, body.BlockedUserID); err != nil {
		if errors.Is(err, block.ErrSelfBlock) {
			ctx = middleware.SetErrorCode(ctx, ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(ctx, "failed to block user", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to block user")
		return
	}

	recordAudit(r, h.audits, "user", body.BlockedUserID, "block_user")
	writeJSON(w, ctx, http.StatusCreated, map[string]bool{"success": true})
}

// UnblockUser handles DELETE /api/blocks/{user_id}. Unblocking a user
// who was never blocked is a no-op.
func (h *BlockHandlers) UnblockUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	blockedID := r.PathValue("user_id")
	if blockedID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Missing user ID")
		return
	}

	if err := h.blocks.Unblock(ctx, userID, blockedID); err != nil {
		slog.ErrorContext(ctx, "failed to unblock user", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to unblock user")
		return
	}

	recordAudit(r, h.audits, "user", blockedID, "unblock_user")
	writeJSON(w, ctx, http.StatusOK, map[string]bool{"success": true})
}

// ListBlocks handles GET /api/blocks - users the caller has blocked.
func (h *BlockHandlers) ListBlocks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	entries, err := h.blocks.List(ctx, userID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list blocks", "error", err, "user_id", userID)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list blocks")
		return
	}

	resp := make([]BlockResponse, 0, len(entries))
	for _, b := range entries {
		p, err := h.profiles.Get(ctx, b.BlockedID)
		if err != nil {
			p = profile.Default(b.BlockedID)
		}
		resp = append(resp, BlockResponse{Block: b, Profile: p.Core})
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}
