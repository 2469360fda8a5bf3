package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("session")

const (
	// DefaultPrefix is put in front of every session id
	DefaultPrefix = "sess:"
	// DefaultTTL is used for sessions without a cookie expiry
	DefaultTTL = 24 * time.Hour
)

// Data is the content of a session. If it carries a "cookie" object with an
// "expires" timestamp (RFC 3339), that timestamp decides when the session expires.
type Data map[string]any

// Store persists sessions as JSON values with a ttl in a key-value backend
type Store struct {
	backend store.IStore
	prefix  string
	ttl     time.Duration
}

// Option configures a session store
type Option func(*Store)

// WithPrefix sets the key prefix of all sessions
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets the ttl of sessions without a cookie expiry.
// A ttl <= 0 means sessions never expire.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a session store on backend
func New(backend store.IStore, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("session: backend is nil")
	}
	s := &Store{
		backend: backend,
		prefix:  DefaultPrefix,
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key returns the backend key of the session
func (s *Store) Key(sid string) string {
	return s.prefix + sid
}

// Get loads a session. The boolean reports whether a live session was found.
func (s *Store) Get(sid string) (Data, bool, error) {
	value, ok, err := s.backend.Get(s.Key(sid))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %q: %w", sid, err)
	}
	if !ok {
		return nil, false, nil
	}

	var data Data
	if err := json.Unmarshal(value, &data); err != nil {
		return nil, false, fmt.Errorf("failed to decode session %q: %w", sid, err)
	}
	return data, true, nil
}

// Set stores a session. A session whose cookie already expired is destroyed instead.
func (s *Store) Set(sid string, data Data) error {
	ttl, live := s.ttlOf(data)
	if !live {
		return s.Destroy(sid)
	}

	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session %q: %w", sid, err)
	}
	if err := s.backend.SetE(s.Key(sid), value, ttl); err != nil {
		return fmt.Errorf("failed to store session %q: %w", sid, err)
	}
	return nil
}

// Touch resets the ttl of a session without changing its content.
// It returns false if the session does not exist.
func (s *Store) Touch(sid string) (bool, error) {
	data, ok, err := s.Get(sid)
	if err != nil || !ok {
		return false, err
	}
	if err := s.Set(sid, data); err != nil {
		return false, err
	}
	return true, nil
}

// Destroy deletes sessions. Missing sessions are ignored.
func (s *Store) Destroy(sids ...string) error {
	if len(sids) == 0 {
		return nil
	}
	keys := make([]string, len(sids))
	for i, sid := range sids {
		keys[i] = s.Key(sid)
	}
	if err := s.backend.Delete(keys...); err != nil {
		return fmt.Errorf("failed to destroy %d sessions: %w", len(sids), err)
	}
	return nil
}

// ttlOf returns the ttl for data and false if its cookie is already expired
func (s *Store) ttlOf(data Data) (time.Duration, bool) {
	cookie, ok := data["cookie"].(map[string]any)
	if !ok {
		return s.ttl, true
	}
	raw, ok := cookie["expires"].(string)
	if !ok || raw == "" {
		return s.ttl, true
	}
	expires, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		log.Warningf("ignoring invalid cookie expiry %q: %v", raw, err)
		return s.ttl, true
	}
	ttl := time.Until(expires)
	return ttl, ttl > 0
}
