package friendship

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-social/kindred/internal/notify"
)

// ProfileChecker reports whether a user has a profile. Satisfied by
// profile.Repository.
type ProfileChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// Service enforces the friend-request rules on top of a Repository:
// no self-requests, no duplicate pending requests, no re-friending.
type Service struct {
	repo     Repository
	profiles ProfileChecker
	hub      *notify.Hub // optional; nil disables notifications
	nowFunc  func() time.Time
	newID    func() string
}

// NewService creates a friendship service. hub may be nil.
func NewService(repo Repository, profiles ProfileChecker, hub *notify.Hub) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		hub:      hub,
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// SendRequest creates a pending friend request from senderID to
// receiverID after the guard checks pass.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID string) (*Request, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}

	exists, err := s.profiles.Exists(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrReceiverNotFound
	}

	pending, err := s.repo.HasPendingRequestBetween(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrDuplicateRequest
	}

	friends, err := s.repo.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	req := &Request{
		ID:         s.newID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     StatusPending,
		CreatedAt:  s.nowFunc().UTC(),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Notify(receiverID, &notify.Event{
			Type:       notify.EventFriendRequest,
			FromUserID: senderID,
			CreatedAt:  req.CreatedAt,
		})
	}
	return req, nil
}

// AcceptRequest marks the request accepted and creates the friendship
// row. Only the receiver may accept.
func (s *Service) AcceptRequest(ctx context.Context, requestID, receiverID string) (*Friendship, error) {
	req, err := s.repo.GetPendingRequest(ctx, requestID, receiverID)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc().UTC()
	if err := s.repo.UpdateRequestStatus(ctx, requestID, StatusAccepted, now); err != nil {
		return nil, err
	}

	f := &Friendship{
		ID:        s.newID(),
		User1ID:   req.SenderID,
		User2ID:   req.ReceiverID,
		CreatedAt: now,
	}
	if err := s.repo.CreateFriendship(ctx, f); err != nil {
		return nil, err
	}

	if s.hub != nil {
		s.hub.Notify(req.SenderID, &notify.Event{
			Type:       notify.EventFriendAccepted,
			FromUserID: receiverID,
			CreatedAt:  now,
		})
	}
	return f, nil
}

// RejectRequest marks the request rejected. Only the receiver may
// reject.
func (s *Service) RejectRequest(ctx context.Context, requestID, receiverID string) error {
	if _, err := s.repo.GetPendingRequest(ctx, requestID, receiverID); err != nil {
		return err
	}
	return s.repo.UpdateRequestStatus(ctx, requestID, StatusRejected, s.nowFunc().UTC())
}

// RemoveFriend deletes the friendship. Either side may remove it.
func (s *Service) RemoveFriend(ctx context.Context, friendshipID, userID string) error {
	if _, err := s.repo.GetFriendship(ctx, friendshipID, userID); err != nil {
		return err
	}
	return s.repo.DeleteFriendship(ctx, friendshipID)
}

// ListFriends returns all friendships involving userID.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]Friendship, error) {
	return s.repo.ListFriendships(ctx, userID)
}

// ListPendingRequests returns pending requests addressed to userID.
func (s *Service) ListPendingRequests(ctx context.Context, userID string) ([]Request, error) {
	return s.repo.ListPendingRequests(ctx, userID)
}
