package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/chanakya-ai/chanakya/pkg/logger"
)

// sessionLockStripes fixes the size of the lock table. Sessions hash onto
// stripes, so the table stays bounded no matter how many session ids pass
// through; distinct sessions sharing a stripe only costs contention.
const sessionLockStripes = 256

// Config bounds the hot cache and the summarizer.
type Config struct {
	SessionCacheMax     int
	SummarizeThreshold  int
	SummarizeKeepRecent int
	ContextWindow       int
}

// Service combines the hot cache, the durable store and the summarizer.
// Writes within one session are serialised through striped locks; sessions
// are independent.
type Service struct {
	cache      *lruCache[string, *Session]
	store      *Store
	summarizer Summarizer
	cfg        Config

	locks [sessionLockStripes]sync.Mutex
}

func NewService(store *Store, summarizer Summarizer, cfg Config) *Service {
	if cfg.SessionCacheMax < 1 {
		cfg.SessionCacheMax = 1000
	}
	if cfg.SummarizeThreshold < 1 {
		cfg.SummarizeThreshold = 20
	}
	if cfg.SummarizeKeepRecent < 1 {
		cfg.SummarizeKeepRecent = 5
	}
	if cfg.ContextWindow < 1 {
		cfg.ContextWindow = 10
	}
	return &Service{
		cache:      newLRUCache[string, *Session](cfg.SessionCacheMax),
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
	}
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%sessionLockStripes]
}

// GetOrCreate resolves a session: cache hit, or hydrate the last
// ContextWindow messages from the durable store. Store read failures
// degrade to an empty context rather than failing the request.
func (s *Service) GetOrCreate(ctx context.Context, sessionID string) *Session {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if session, ok := s.cache.Get(sessionID); ok {
		return session
	}

	log := logger.GetLogger()
	now := time.Now().UTC()
	session := &Session{
		ID:        sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]string{},
	}

	if s.store != nil {
		if err := s.store.EnsureSession(ctx, sessionID, nil); err != nil {
			log.Warn("session_upsert_failed", "session", sessionID, "error", err)
		}
		if stored, err := s.store.GetSession(ctx, sessionID); err == nil {
			session.CreatedAt = stored.CreatedAt
			session.Metadata = stored.Metadata
		}
		messages, err := s.store.RecentMessages(ctx, sessionID, s.cfg.ContextWindow)
		if err != nil {
			log.Warn("session_hydration_failed", "session", sessionID, "error", err)
		} else {
			session.Messages = messages
		}
	}

	s.cache.Put(sessionID, session)
	return session
}

// Append records a message in the durable store and then in the cached
// session. The durable write happens first so downstream work observes it;
// a write failure is logged and dropped — the in-memory session still
// advances so the current request completes.
func (s *Service) Append(ctx context.Context, sessionID, role, content string) {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	msg := Message{
		SessionID:   sessionID,
		Role:        role,
		Content:     content,
		CaptureTime: time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.AppendMessage(ctx, msg); err != nil {
			logger.GetLogger().Warn("message_write_failed",
				"session", sessionID, "role", role, "error", err)
		}
	}

	session, ok := s.cache.Get(sessionID)
	if !ok {
		return
	}
	msg.Sequence = int64(len(session.Messages) + 1)
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = msg.CaptureTime
}

// MaybeSummarize compresses the cached session once it exceeds the
// threshold: the oldest len-keepRecent messages become one system summary
// message, followed by the retained recent messages. On summarizer failure
// the list is truncated to the recent messages instead. Either way the
// compacted list is renumbered from one. The durable store is never
// modified.
func (s *Service) MaybeSummarize(ctx context.Context, sessionID string) {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, ok := s.cache.Get(sessionID)
	if !ok || len(session.Messages) <= s.cfg.SummarizeThreshold {
		return
	}

	keep := s.cfg.SummarizeKeepRecent
	old := session.Messages[:len(session.Messages)-keep]
	recent := session.Messages[len(session.Messages)-keep:]

	log := logger.GetLogger()

	if s.summarizer == nil {
		session.Messages = renumber(append([]Message{}, recent...))
		return
	}

	summary, err := s.summarizer.Summarize(ctx, old)
	if err != nil {
		log.Warn("summarization_failed", "session", sessionID,
			"dropped", len(old), "error", err)
		session.Messages = renumber(append([]Message{}, recent...))
		return
	}

	compressed := make([]Message, 0, keep+1)
	compressed = append(compressed, SummaryMessage(sessionID, summary))
	compressed = append(compressed, recent...)
	session.Messages = renumber(compressed)

	log.Info("session_summarized", "session", sessionID,
		"compressed", len(old), "kept", keep)
}

// renumber restores contiguous 1-based sequence numbers after compaction,
// so the next Append extends the list rather than colliding with retained
// numbers.
func renumber(msgs []Message) []Message {
	for i := range msgs {
		msgs[i].Sequence = int64(i + 1)
	}
	return msgs
}

// Recent returns up to n of the newest cached messages in chronological
// order.
func (s *Service) Recent(sessionID string, n int) []Message {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, ok := s.cache.Get(sessionID)
	if !ok {
		return nil
	}
	msgs := session.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// GetSnapshot returns a copy of the cached session, or false when the
// session is not in the hot cache.
func (s *Service) GetSnapshot(sessionID string) (*Snapshot, bool) {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	messages := make([]Message, len(session.Messages))
	copy(messages, session.Messages)
	return &Snapshot{
		ID:           session.ID,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		MessageCount: len(messages),
		Messages:     messages,
	}, true
}

// Clear evicts a session from the hot cache. The durable store is
// untouched.
func (s *Service) Clear(sessionID string) bool {
	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()
	return s.cache.Remove(sessionID)
}

// CachedSessions returns the current hot-cache size.
func (s *Service) CachedSessions() int {
	return s.cache.Len()
}

// Sweep removes sessions older than retentionDays from the durable store.
// Idempotent. Hot-cache entries age out through normal LRU eviction.
func (s *Service) Sweep(ctx context.Context, retentionDays int) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed, err := s.store.Sweep(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logger.GetLogger().Info("retention_sweep", "removed", removed, "cutoff", cutoff)
	return removed, nil
}
