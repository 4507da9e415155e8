package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute},
			wantErr: false,
		},
		{
			name:    "zero requests",
			config:  RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute},
			wantErr: true,
		},
		{
			name:    "negative requests",
			config:  RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute},
			wantErr: true,
		},
		{
			name:    "zero window",
			config:  RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	global := DefaultGlobalLimit()
	if global.RequestsPerWindow != 100 || global.WindowDuration != time.Minute {
		t.Errorf("DefaultGlobalLimit() = %+v, want 100/min", global)
	}
	auth := DefaultAuthLimit()
	if auth.RequestsPerWindow != 10 || auth.WindowDuration != time.Minute {
		t.Errorf("DefaultAuthLimit() = %+v, want 10/min", auth)
	}
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, retryAfter := store.Allow(ctx, "client-1", config)
		if !allowed {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
		if retryAfter != 0 {
			t.Errorf("request %d retryAfter = %d, want 0", i+1, retryAfter)
		}
	}

	allowed, retryAfter := store.Allow(ctx, "client-1", config)
	if allowed {
		t.Fatal("request over limit allowed, want blocked")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within (0, 60]", retryAfter)
	}
}

func TestInMemoryRateLimitStore_IndependentKeys(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	if allowed, _ := store.Allow(ctx, "client-a", config); !allowed {
		t.Fatal("first request for client-a blocked")
	}
	if allowed, _ := store.Allow(ctx, "client-a", config); allowed {
		t.Fatal("second request for client-a allowed, want blocked")
	}
	// A different key gets its own bucket.
	if allowed, _ := store.Allow(ctx, "client-b", config); !allowed {
		t.Fatal("first request for client-b blocked")
	}
}

func TestInMemoryRateLimitStore_WindowExpiry(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 20 * time.Millisecond}

	if allowed, _ := store.Allow(ctx, "client-1", config); !allowed {
		t.Fatal("first request blocked")
	}
	if allowed, _ := store.Allow(ctx, "client-1", config); allowed {
		t.Fatal("second request allowed, want blocked")
	}

	time.Sleep(30 * time.Millisecond)

	if allowed, _ := store.Allow(ctx, "client-1", config); !allowed {
		t.Fatal("request after window expiry blocked, want allowed")
	}
}

func TestInMemoryRateLimitStore_Cleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	short := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: 10 * time.Millisecond}
	long := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}

	store.Allow(ctx, "expired", short)
	store.Allow(ctx, "active", long)

	time.Sleep(20 * time.Millisecond)
	store.Cleanup()

	store.mu.RLock()
	defer store.mu.RUnlock()
	if _, ok := store.buckets["expired"]; ok {
		t.Error("expired bucket not removed by Cleanup")
	}
	if _, ok := store.buckets["active"]; !ok {
		t.Error("active bucket removed by Cleanup")
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "X-Forwarded-For single IP",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "X-Forwarded-For chain uses first hop",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2, 10.0.0.3"},
			want:       "203.0.113.7",
		},
		{
			name:       "X-Real-IP fallback",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": " 203.0.113.9 "},
			want:       "203.0.113.9",
		},
		{
			name:       "RemoteAddr with port",
			remoteAddr: "198.51.100.4:5678",
			want:       "198.51.100.4",
		},
		{
			name:       "IPv6 RemoteAddr with port",
			remoteAddr: "[2001:db8::1]:5678",
			want:       "2001:db8::1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "198.51.100.4",
			want:       "198.51.100.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/profiles/user-1", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := keyFunc(r); got != tt.want {
				t.Errorf("IPKeyFunc() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	r := httptest.NewRequest(http.MethodGet, "/api/profiles/user-1", nil)
	r.RemoteAddr = "198.51.100.4:5678"
	if got := keyFunc(r); got != "ip:198.51.100.4" {
		t.Errorf("unauthenticated key = %q, want %q", got, "ip:198.51.100.4")
	}

	r = r.WithContext(SetUserID(r.Context(), "user-42"))
	if got := keyFunc(r); got != "user:user-42" {
		t.Errorf("authenticated key = %q, want %q", got, "user:user-42")
	}
}

func TestRateLimiter(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	handler := RateLimiter(store, config, IPKeyFunc())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/profiles/user-1", nil)
		r.RemoteAddr = "198.51.100.4:5678"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do(); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set on 429")
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header not set on 429")
	}
}

func TestRateLimiter_PerClientIsolation(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	handler := RateLimiter(store, config, IPKeyFunc())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/locations/nearby", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	if code := do("198.51.100.4:1111"); code != http.StatusOK {
		t.Fatalf("first client status = %d, want 200", code)
	}
	if code := do("198.51.100.4:2222"); code != http.StatusTooManyRequests {
		t.Fatalf("same IP second request status = %d, want 429", code)
	}
	if code := do("203.0.113.7:3333"); code != http.StatusOK {
		t.Fatalf("different client status = %d, want 200", code)
	}
}

func TestPathRateLimiter(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	handler := PathRateLimiter("/api/auth/", store, config, IPKeyFunc())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) int {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.RemoteAddr = "198.51.100.4:5678"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("/api/auth/sessions"); code != http.StatusOK {
			t.Fatalf("auth request %d status = %d, want 200", i+1, code)
		}
	}
	if code := do("/api/auth/sessions"); code != http.StatusTooManyRequests {
		t.Fatalf("auth request over limit status = %d, want 429", code)
	}

	// Other paths are unaffected by the scoped limit.
	for i := 0; i < 5; i++ {
		if code := do("/api/locations/nearby"); code != http.StatusOK {
			t.Fatalf("non-auth request %d status = %d, want 200", i+1, code)
		}
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}

	done := make(chan int, 10)
	for g := 0; g < 10; g++ {
		go func() {
			allowed := 0
			for i := 0; i < 10; i++ {
				if ok, _ := store.Allow(ctx, "shared", config); ok {
					allowed++
				}
			}
			done <- allowed
		}()
	}

	total := 0
	for g := 0; g < 10; g++ {
		total += <-done
	}
	if total != 50 {
		t.Errorf("allowed %d of 100 concurrent requests, want exactly 50", total)
	}
}

func BenchmarkInMemoryRateLimitStore_Allow(b *testing.B) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := DefaultGlobalLimit()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Allow(ctx, fmt.Sprintf("key-%d", i%100), config)
	}
}
