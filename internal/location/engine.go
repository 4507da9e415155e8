package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kindred-social/kindred/internal/geo"
	"github.com/kindred-social/kindred/internal/tracing"
)

// Limit bounds for proximity queries. Values outside the range are a
// validation error, not silently clamped.
const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 10
)

// ErrInvalidLimit is returned when a query limit is outside [1, 100].
var ErrInvalidLimit = errors.New("limit must be between 1 and 100")

// NearestRequest asks for the users nearest to a reference user's last
// known location.
type NearestRequest struct {
	// UserID is the reference user whose stored location anchors the query.
	UserID string
	// Limit caps the number of returned matches (1-100).
	Limit int
	// MaxDistanceKm, when set, excludes candidates strictly farther away.
	MaxDistanceKm *float64
	// Exclude lists user ids dropped from results before ranking
	// (e.g. users with a block in either direction).
	Exclude map[string]struct{}
}

// CoordinatesRequest asks for the users nearest to an explicit point.
type CoordinatesRequest struct {
	Latitude      float64
	Longitude     float64
	Limit         int
	MaxDistanceKm *float64
	Exclude       map[string]struct{}
}

// Match is one ranked proximity result.
type Match struct {
	UserID     string     `json:"user_id"`
	DistanceKm float64    `json:"distance_km"`
	Visibility Visibility `json:"visibility"`
}

// Result is the outcome of a proximity query. TotalFound counts
// candidates that passed the distance filter before truncation;
// Window is the widest recency window the query had to fall back to.
type Result struct {
	Matches    []Match
	TotalFound int
	Window     time.Duration
}

// Engine ranks candidate locations around a reference point. It holds
// no mutable state; all coordination is deferred to the repository.
type Engine struct {
	cipher  *Cipher
	repo    Repository
	logger  *slog.Logger
	metrics *Metrics
}

// NewEngine creates a proximity search engine. metrics may be nil.
func NewEngine(cipher *Cipher, repo Repository, logger *slog.Logger, metrics *Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cipher:  cipher,
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

func validateLimit(limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return fmt.Errorf("%w (got %d)", ErrInvalidLimit, limit)
	}
	return nil
}

// FindNearest resolves the reference user's own stored location and
// ranks all eligible candidates by great-circle distance.
//
// Recency fallback is independent per lookup: the self fix and the
// candidate set each try the primary window first and widen to the
// secondary window on their own when the primary yields nothing. If
// the self fix is missing even at the secondary window, the query
// fails with ErrLocationNotFound.
func (e *Engine) FindNearest(ctx context.Context, req NearestRequest) (result *Result, err error) {
	if err := validateLimit(req.Limit); err != nil {
		return nil, err
	}
	ctx, end := tracing.StartSpan(ctx, "find_nearest")
	defer func() { end(err) }()
	start := time.Now()
	defer func() {
		e.metrics.ObserveQueryDuration(time.Since(start))
	}()
	e.metrics.RecordQuery("user")

	selfWindow := PrimaryWindow
	rec, err := e.repo.GetSelf(ctx, req.UserID, PrimaryWindow)
	if errors.Is(err, ErrLocationNotFound) {
		selfWindow = SecondaryWindow
		e.metrics.RecordWindowFallback("self")
		rec, err = e.repo.GetSelf(ctx, req.UserID, SecondaryWindow)
	}
	if err != nil {
		return nil, err
	}

	lat, lon, err := e.cipher.Decrypt(rec.EncryptedData)
	if err != nil {
		// A corrupt reference record cannot be recovered from; the
		// request fails as a server error.
		e.metrics.RecordDecryptFailure()
		e.logger.Error("failed to decrypt reference location",
			slog.String("user_id", req.UserID),
			slog.String("operation", "find_nearest"))
		return nil, fmt.Errorf("reference location for user %s: %w", req.UserID, ErrDecryptFailed)
	}

	candidates, candWindow, err := e.fetchCandidates(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	matches := e.rank(lat, lon, candidates, req.MaxDistanceKm, req.Exclude)
	tracing.SetAttributes(ctx,
		attribute.Int("candidates", len(candidates)),
		attribute.Int("matches", len(matches)),
	)
	window := selfWindow
	if candWindow > window {
		window = candWindow
	}
	return truncate(matches, req.Limit, window), nil
}

// FindNearestByCoords ranks eligible candidates around an explicit
// reference point. No self-resolution is involved; the candidate set
// uses the same two fixed windows with the same widening rule.
func (e *Engine) FindNearestByCoords(ctx context.Context, req CoordinatesRequest) (result *Result, err error) {
	if err := validateLimit(req.Limit); err != nil {
		return nil, err
	}
	if err := ValidateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}
	ctx, end := tracing.StartSpan(ctx, "find_nearest_by_coords")
	defer func() { end(err) }()
	start := time.Now()
	defer func() {
		e.metrics.ObserveQueryDuration(time.Since(start))
	}()
	e.metrics.RecordQuery("coordinates")

	candidates, candWindow, err := e.fetchCandidates(ctx, "")
	if err != nil {
		return nil, err
	}

	matches := e.rank(req.Latitude, req.Longitude, candidates, req.MaxDistanceKm, req.Exclude)
	return truncate(matches, req.Limit, candWindow), nil
}

// fetchCandidates loads candidate rows under the primary window,
// widening to the secondary window when the primary yields nothing.
func (e *Engine) fetchCandidates(ctx context.Context, excludeUserID string) ([]Record, time.Duration, error) {
	candidates, err := e.repo.ListCandidates(ctx, excludeUserID, PrimaryWindow)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) > 0 {
		return candidates, PrimaryWindow, nil
	}

	e.metrics.RecordWindowFallback("candidates")
	candidates, err = e.repo.ListCandidates(ctx, excludeUserID, SecondaryWindow)
	if err != nil {
		return nil, 0, err
	}
	return candidates, SecondaryWindow, nil
}

// rank decrypts each candidate, computes distances, applies the
// distance filter and exclusion set, and sorts ascending by distance.
// A candidate that fails to decrypt is skipped so one corrupt row
// cannot deny service to the rest.
func (e *Engine) rank(refLat, refLon float64, candidates []Record, maxDistanceKm *float64, exclude map[string]struct{}) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, cand := range candidates {
		if _, blocked := exclude[cand.UserID]; blocked {
			continue
		}

		lat, lon, err := e.cipher.Decrypt(cand.EncryptedData)
		if err != nil {
			e.metrics.RecordDecryptFailure()
			e.logger.Warn("skipping candidate with undecryptable location",
				slog.String("user_id", cand.UserID),
				slog.String("operation", "rank_candidates"))
			continue
		}

		distance := geo.DistanceKm(refLat, refLon, lat, lon)
		if maxDistanceKm != nil && distance > *maxDistanceKm {
			continue
		}
		matches = append(matches, Match{
			UserID:     cand.UserID,
			DistanceKm: geo.RoundKm(distance),
			Visibility: cand.Visibility,
		})
	}

	// Stable sort keeps arrival order as the tiebreak for equal distances.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return matches
}

func truncate(matches []Match, limit int, window time.Duration) *Result {
	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return &Result{
		Matches:    matches,
		TotalFound: total,
		Window:     window,
	}
}
