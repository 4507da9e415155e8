package album

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-social/kindred/internal/notify"
)

// Service enforces ownership and permission rules on top of a
// Repository.
type Service struct {
	repo    Repository
	hub     *notify.Hub // optional; nil disables notifications
	nowFunc func() time.Time
	newID   func() string
}

// NewService creates an album service. hub may be nil.
func NewService(repo Repository, hub *notify.Hub) *Service {
	return &Service{
		repo:    repo,
		hub:     hub,
		nowFunc: time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Create validates and stores a new album owned by userID.
func (s *Service) Create(ctx context.Context, userID string, a *Album) (*Album, error) {
	a.UserID = userID
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ID = s.newID()
	a.CreatedAt = s.nowFunc().UTC()
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Update validates and replaces an album. Only the owner may update.
func (s *Service) Update(ctx context.Context, userID string, a *Album) (*Album, error) {
	existing, err := s.repo.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, ErrNotOwner
	}

	a.UserID = userID
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, a.ID)
}

// Get returns an album after the permission check.
func (s *Service) Get(ctx context.Context, albumID, viewerID string) (*Album, error) {
	a, err := s.repo.Get(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if !a.CanView(viewerID) {
		return nil, ErrNotAuthorized
	}
	return a, nil
}

// Delete removes an album. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, albumID, userID string) error {
	a, err := s.repo.Get(ctx, albumID)
	if err != nil {
		return err
	}
	if a.UserID != userID {
		return ErrNotOwner
	}
	return s.repo.Delete(ctx, albumID)
}

// ListVisible returns albums userID may view.
func (s *Service) ListVisible(ctx context.Context, userID string) ([]Album, error) {
	return s.repo.ListVisible(ctx, userID)
}

// ListOwned returns albums owned by userID.
func (s *Service) ListOwned(ctx context.Context, userID string) ([]Album, error) {
	return s.repo.ListOwned(ctx, userID)
}

// AttachPhoto appends an uploaded photo's object key to the album.
// Only the owner may attach.
func (s *Service) AttachPhoto(ctx context.Context, albumID, userID, objectKey string) (*Album, error) {
	a, err := s.repo.Get(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrNotOwner
	}

	a.Images = append(a.Images, objectKey)
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, albumID)
}

// RequestAccess files an access request for a restricted album. The
// owner is notified.
func (s *Service) RequestAccess(ctx context.Context, albumID, requesterID string) (*AccessRequest, error) {
	a, err := s.repo.Get(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if a.CanView(requesterID) {
		// Already viewable; nothing to request.
		return nil, ErrDuplicateAccessRequest
	}

	pending, err := s.repo.HasAccessRequest(ctx, albumID, requesterID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateAccessRequest
	}

	req := &AccessRequest{
		ID:          s.newID(),
		AlbumID:     albumID,
		RequesterID: requesterID,
		CreatedAt:   s.nowFunc().UTC(),
	}
	if err := s.repo.CreateAccessRequest(ctx, req); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Notify(a.UserID, &notify.Event{
			Type:       notify.EventAlbumAccessRequest,
			FromUserID: requesterID,
			AlbumID:    albumID,
			CreatedAt:  req.CreatedAt,
		})
	}
	return req, nil
}

// GrantAccess adds the requester to the allowed list and clears the
// request. Only the album owner may grant.
func (s *Service) GrantAccess(ctx context.Context, requestID, ownerID string) (*Album, error) {
	req, err := s.repo.GetAccessRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	a, err := s.repo.Get(ctx, req.AlbumID)
	if err != nil {
		return nil, err
	}
	if a.UserID != ownerID {
		return nil, ErrNotOwner
	}

	if !a.IsAllowed(req.RequesterID) {
		a.AllowedUsers = append(a.AllowedUsers, req.RequesterID)
		if err := s.repo.Update(ctx, a); err != nil {
			return nil, err
		}
	}
	if err := s.repo.DeleteAccessRequest(ctx, requestID); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Notify(req.RequesterID, &notify.Event{
			Type:       notify.EventAlbumAccessGranted,
			FromUserID: ownerID,
			AlbumID:    req.AlbumID,
			CreatedAt:  s.nowFunc().UTC(),
		})
	}
	return s.repo.Get(ctx, req.AlbumID)
}

// DenyAccess clears the request without changing the allowed list.
// Only the album owner may deny.
func (s *Service) DenyAccess(ctx context.Context, requestID, ownerID string) error {
	req, err := s.repo.GetAccessRequest(ctx, requestID)
	if err != nil {
		return err
	}

	a, err := s.repo.Get(ctx, req.AlbumID)
	if err != nil {
		return err
	}
	if a.UserID != ownerID {
		return ErrNotOwner
	}

	if err := s.repo.DeleteAccessRequest(ctx, requestID); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.Notify(req.RequesterID, &notify.Event{
			Type:       notify.EventAlbumAccessDenied,
			FromUserID: ownerID,
			AlbumID:    req.AlbumID,
			CreatedAt:  s.nowFunc().UTC(),
		})
	}
	return nil
}

// ListAccessRequests returns pending requests for an album. Only the
// owner may list them.
func (s *Service) ListAccessRequests(ctx context.Context, albumID, ownerID string) ([]AccessRequest, error) {
	a, err := s.repo.Get(ctx, albumID)
	if err != nil {
		return nil, err
	}
	if a.UserID != ownerID {
		return nil, ErrNotOwner
	}
	return s.repo.ListAccessRequests(ctx, albumID)
}
