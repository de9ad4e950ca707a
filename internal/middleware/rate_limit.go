package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/kestrelworks/beacon/pkg/http"
)

// CounterStore is the key-value surface behind the fixed-window limiter.
// The in-memory implementation is a single-node approximation; swapping in
// a shared store requires no call-site changes.
type CounterStore interface {
	// Increment bumps the counter for key, starting a fresh window when none
	// is active, and returns the hit count and window expiry.
	Increment(key string, window time.Duration) (count int, expiresAt time.Time)

	// DeleteExpired drops counters whose window has elapsed.
	DeleteExpired() int
}

type counterEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryCounterStore is the process-local CounterStore. Counts are not
// coordinated across nodes; that is a documented limitation, not a defect.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{entries: make(map[string]*counterEntry)}
}

func (s *MemoryCounterStore) Increment(key string, window time.Duration) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &counterEntry{count: 1, expiresAt: now.Add(window)}
		s.entries[key] = entry
		return entry.count, entry.expiresAt
	}

	entry.count++
	return entry.count, entry.expiresAt
}

func (s *MemoryCounterStore) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	deleted := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted
}

// RateLimitConfig describes one named fixed-window policy.
type RateLimitConfig struct {
	Name    string        // prefix so policies can share one store
	Window  time.Duration // window duration
	Limit   int           // max hits per window
	KeyFunc func(r *http.Request) (string, error)
	Skip    func(r *http.Request) bool // allow unconditionally when true
	Message string                     // 429 response body
}

// RateLimit returns a middleware enforcing cfg against store. Quota headers
// are set on allowed and rejected responses alike.
func RateLimit(cfg RateLimitConfig, store CounterStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			key, err := cfg.KeyFunc(r)
			if err != nil {
				key = r.RemoteAddr
			}

			count, expiresAt := store.Increment(cfg.Name+":"+key, cfg.Window)

			remaining := cfg.Limit - count
			if remaining < 0 {
				remaining = 0
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(expiresAt.Unix(), 10))

			if count > cfg.Limit {
				retryAfter := int(time.Until(expiresAt).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				pkghttp.WriteTooManyRequests(w, cfg.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthRateLimit limits authentication attempts: 10 hits per 15 minutes,
// keyed by client IP plus the submitted username so one address cannot
// exhaust another user's quota.
func AuthRateLimit(store CounterStore) func(next http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		Name:    "auth",
		Window:  15 * time.Minute,
		Limit:   10,
		KeyFunc: keyByIPAndUsername,
		Message: "Too many authentication attempts. Please try again later.",
	}, store)
}

// ContactRateLimit limits contact-form submissions: 5 hits per hour by IP.
func ContactRateLimit(store CounterStore) func(next http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		Name:    "contact",
		Window:  1 * time.Hour,
		Limit:   5,
		KeyFunc: httprate.KeyByIP,
		Message: "Too many contact submissions. Please try again later.",
	}, store)
}

// APIRateLimit limits general API traffic: 100 hits per minute by IP,
// bypassing health checks.
func APIRateLimit(store CounterStore) func(next http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		Name:    "api",
		Window:  1 * time.Minute,
		Limit:   100,
		KeyFunc: httprate.KeyByIP,
		Skip: func(r *http.Request) bool {
			return r.URL.Path == "/health"
		},
		Message: "Rate limit exceeded",
	}, store)
}

// maxKeyPeekBytes caps how much of the body the auth key extractor buffers.
// Legitimate login payloads are tiny; anything larger is keyed by IP alone.
const maxKeyPeekBytes = 1 << 16

// keyByIPAndUsername combines the client IP with the username field of the
// JSON body. The peeked bytes are stitched back onto the body so handlers
// always see the full payload, even past the peek cap.
func keyByIPAndUsername(r *http.Request) (string, error) {
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		ip = r.RemoteAddr
	}

	if r.Body == nil {
		return ip, nil
	}

	peeked, err := io.ReadAll(io.LimitReader(r.Body, maxKeyPeekBytes))
	if err != nil {
		return ip, nil
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peeked), r.Body), r.Body}

	if len(peeked) == maxKeyPeekBytes {
		// Body may extend past the cap; don't key on a clipped payload.
		return ip, nil
	}

	var payload struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(peeked, &payload); err != nil || payload.Username == "" {
		return ip, nil
	}

	return ip + ":" + payload.Username, nil
}
