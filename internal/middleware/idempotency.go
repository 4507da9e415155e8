package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header carrying the client's key.
const IdempotencyKeyHeader = "Idempotency-Key"

type idempotencyKeyContextKey struct{}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey returns the idempotency key from the context, or "".
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// captureWriter records the status code and body as they stream out so
// a successful response can be cached for replay.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	wroteHead  bool
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	if !w.wroteHead {
		w.statusCode = statusCode
		w.wroteHead = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// UpdateContext forwards a handler-derived context to the wrapped writer.
func (w *captureWriter) UpdateContext(ctx context.Context) {
	UpdateResponseContext(w.ResponseWriter, ctx)
}

func writeIdempotencyError(w http.ResponseWriter, ctx context.Context, code, message string) {
	UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	io.WriteString(w, `{"error":"`+code+`","message":"`+message+`"}`)
}

// IdempotencyMiddleware requires an Idempotency-Key header on POSTs to
// the given routes. A repeated key replays the cached response; a new
// key runs the handler and caches any 2xx response for later replay.
func IdempotencyMiddleware(repo idempotency.Repository, routes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || !routes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				ctx := SetErrorCode(r.Context(), "missing_idempotency_key")
				writeIdempotencyError(w, ctx, "missing_idempotency_key", "Idempotency-Key header is required for this request")
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				code := "invalid_idempotency_key"
				message := "Invalid Idempotency-Key format"
				if err == idempotency.ErrKeyTooLong {
					code = "idempotency_key_too_long"
					message = "Idempotency-Key exceeds maximum length of 64 characters"
				}
				ctx := SetErrorCode(r.Context(), code)
				writeIdempotencyError(w, ctx, code, message)
				return
			}

			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)

			existing, err := repo.Get(key)
			if err == nil {
				slog.InfoContext(ctx, "replaying cached idempotent response",
					"key", key,
					"status", existing.ResponseStatusCode,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(existing.ResponseStatusCode)
				io.WriteString(w, existing.ResponseBody)
				return
			}
			if err != idempotency.ErrKeyNotFound {
				// Storage trouble must not block the request.
				slog.ErrorContext(ctx, "idempotency lookup failed", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			cw := newCaptureWriter(w)
			next.ServeHTTP(cw, r)

			// Only 2xx responses are worth replaying.
			if cw.statusCode < 200 || cw.statusCode >= 300 {
				return
			}

			body := cw.body.String()
			record := &idempotency.Record{
				Key:                key,
				Method:             r.Method,
				Route:              r.URL.Path,
				ResponseHash:       idempotency.HashResponse(body),
				ResponseBody:       body,
				ResponseStatusCode: cw.statusCode,
			}
			if err := repo.Store(record); err != nil {
				// Response already sent; the retry just won't be deduplicated.
				slog.ErrorContext(ctx, "failed to store idempotency record", "key", key, "error", err)
			}
		})
	}
}
