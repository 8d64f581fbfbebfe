package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"famfunds/internal/cache"
)

// IdempotencyHeader names the client-chosen key that makes a proposal safe
// to retry.
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKey = 255

var errKeyReused = errors.New("idempotency key reused with a different request")

// idemEntry is claimed by the first request with a key. Later requests wait
// for done and replay the recorded response.
type idemEntry struct {
	fingerprint string
	done        chan struct{}
	status      int
	headers     map[string]string
	body        []byte
}

type idempotencyStore struct {
	entries *cache.LRUCache[*idemEntry]
}

func newIdempotencyStore(size int, ttl time.Duration) *idempotencyStore {
	return &idempotencyStore{entries: cache.NewLRUCache[*idemEntry](size, ttl)}
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// claim returns the entry for key and whether the caller owns it. An owner
// must call complete; a non-owner must call wait.
func (s *idempotencyStore) claim(key string, body []byte) (*idemEntry, bool, error) {
	fp := fingerprint(body)
	for {
		fresh := &idemEntry{fingerprint: fp, done: make(chan struct{})}
		if s.entries.Add(key, fresh) {
			return fresh, true, nil
		}
		existing, ok := s.entries.Get(key)
		if !ok {
			continue // expired between Add and Get
		}
		if existing.fingerprint != fp {
			return nil, false, errKeyReused
		}
		return existing, false, nil
	}
}

// complete records the response. Server errors release the key so that a
// retry runs the request again.
func (s *idempotencyStore) complete(key string, e *idemEntry, status int, headers map[string]string, body []byte) {
	e.status = status
	e.headers = headers
	e.body = body
	if status >= 500 {
		s.entries.Delete(key)
	}
	close(e.done)
}

// replayHeaders copies the recorded headers and marks the response as a replay.
func (e *idemEntry) replayHeaders() map[string]string {
	h := make(map[string]string, len(e.headers)+1)
	for k, v := range e.headers {
		h[k] = v
	}
	h["Idempotent-Replayed"] = "true"
	return h
}

func (e *idemEntry) wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *idempotencyStore) cleaner() cache.Cleaner { return s.entries }
