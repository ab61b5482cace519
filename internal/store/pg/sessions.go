// Package pg provides an optional Postgres-backed SessionStore, selected by
// sessions.backend: postgres. It satisfies the exact append-and-reload
// contract store.SessionStore names; callers cannot tell it apart from the
// file-backed store beyond configuration.
package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open1s/aisbot/internal/providers"
	"github.com/open1s/aisbot/internal/sessions"
	"github.com/open1s/aisbot/internal/store"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS agent_sessions (
	session_key TEXT PRIMARY KEY,
	data        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// row is the JSONB payload shape, independent of the Go-side SessionData so
// schema evolution does not require a migration tool.
type row struct {
	Messages                   []providers.Message `json:"messages"`
	Summary                    string              `json:"summary,omitempty"`
	Model                      string              `json:"model,omitempty"`
	Provider                   string              `json:"provider,omitempty"`
	Channel                    string              `json:"channel,omitempty"`
	InputTokens                int64               `json:"inputTokens,omitempty"`
	OutputTokens               int64               `json:"outputTokens,omitempty"`
	CompactionCount            int                 `json:"compactionCount,omitempty"`
	MemoryFlushCompactionCount int                 `json:"memoryFlushCompactionCount,omitempty"`
	MemoryFlushAt              int64               `json:"memoryFlushAt,omitempty"`
	Label                      string              `json:"label,omitempty"`
	SpawnedBy                  string              `json:"spawnedBy,omitempty"`
	SpawnDepth                 int                 `json:"spawnDepth,omitempty"`
	ContextWindow              int                 `json:"contextWindow,omitempty"`
	LastPromptTokens           int                 `json:"lastPromptTokens,omitempty"`
	LastMessageCount           int                 `json:"lastMessageCount,omitempty"`
}

// Store is a Postgres-backed store.SessionStore. It keeps a full in-memory
// mirror guarded by a mutex (matching the file store's concurrency model)
// and flushes each mutating call through to Postgres; reads are served from
// memory so GetHistory never blocks on the database.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*row
	created  map[string]time.Time
	updated  map[string]time.Time
}

// Open connects to Postgres, ensures the schema exists, and reloads every
// persisted session into memory.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg store: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg store: ensure schema: %w", err)
	}
	s := &Store{
		pool:     pool,
		log:      slog.Default().With("component", "store.pg"),
		sessions: make(map[string]*row),
		created:  make(map[string]time.Time),
		updated:  make(map[string]time.Time),
	}
	if err := s.loadAll(ctx); err != nil {
		s.log.Warn("failed to reload sessions from postgres", "error", err)
	}
	return s, nil
}

func (s *Store) loadAll(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT session_key, data, created_at, updated_at FROM agent_sessions`)
	if err != nil {
		return err
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var key string
		var data []byte
		var created, updated time.Time
		if err := rows.Scan(&key, &data, &created, &updated); err != nil {
			continue
		}
		var r row
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		s.sessions[key] = &r
		s.created[key] = created
		s.updated[key] = updated
	}
	return rows.Err()
}

func (s *Store) getOrCreateLocked(key string) *row {
	if r, ok := s.sessions[key]; ok {
		return r
	}
	r := &row{}
	s.sessions[key] = r
	now := time.Now()
	s.created[key] = now
	s.updated[key] = now
	return r
}

func (s *Store) GetOrCreate(key string) *store.SessionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.getOrCreateLocked(key)
	return toSessionData(key, r, s.created[key], s.updated[key])
}

func (s *Store) AddMessage(key string, msg providers.Message) {
	s.mu.Lock()
	r := s.getOrCreateLocked(key)
	r.Messages = append(r.Messages, msg)
	s.updated[key] = time.Now()
	s.mu.Unlock()
}

func (s *Store) GetHistory(key string) []providers.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.sessions[key]
	if !ok {
		return nil
	}
	out := make([]providers.Message, len(r.Messages))
	copy(out, r.Messages)
	return out
}

func (s *Store) GetSummary(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.sessions[key]; ok {
		return r.Summary
	}
	return ""
}

func (s *Store) SetSummary(key, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.Summary = summary
		s.updated[key] = time.Now()
	}
}

func (s *Store) SetLabel(key, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.Label = label
	}
}

func (s *Store) UpdateMetadata(key, model, provider, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[key]
	if !ok {
		return
	}
	if model != "" {
		r.Model = model
	}
	if provider != "" {
		r.Provider = provider
	}
	if channel != "" {
		r.Channel = channel
	}
}

func (s *Store) AccumulateTokens(key string, input, output int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.InputTokens += input
		r.OutputTokens += output
	}
}

func (s *Store) IncrementCompaction(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.CompactionCount++
	}
}

func (s *Store) GetCompactionCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.sessions[key]; ok {
		return r.CompactionCount
	}
	return 0
}

func (s *Store) GetMemoryFlushCompactionCount(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.sessions[key]; ok {
		return r.MemoryFlushCompactionCount
	}
	return -1
}

func (s *Store) SetMemoryFlushDone(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.MemoryFlushCompactionCount = r.CompactionCount
		r.MemoryFlushAt = time.Now().UnixMilli()
	}
}

func (s *Store) SetSpawnInfo(key, spawnedBy string, depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.SpawnedBy = spawnedBy
		r.SpawnDepth = depth
	}
}

func (s *Store) SetContextWindow(key string, cw int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.ContextWindow = cw
	}
}

func (s *Store) GetContextWindow(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.sessions[key]; ok {
		return r.ContextWindow
	}
	return 0
}

func (s *Store) SetLastPromptTokens(key string, tokens, msgCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.LastPromptTokens = tokens
		r.LastMessageCount = msgCount
	}
}

func (s *Store) GetLastPromptTokens(key string) (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.sessions[key]; ok {
		return r.LastPromptTokens, r.LastMessageCount
	}
	return 0, 0
}

func (s *Store) TruncateHistory(key string, keepLast int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.sessions[key]
	if !ok {
		return
	}
	if keepLast <= 0 {
		r.Messages = nil
	} else if len(r.Messages) > keepLast {
		r.Messages = r.Messages[len(r.Messages)-keepLast:]
	}
}

func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.sessions[key]; ok {
		r.Messages = nil
		r.Summary = ""
	}
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	delete(s.sessions, key)
	delete(s.created, key)
	delete(s.updated, key)
	s.mu.Unlock()
	_, err := s.pool.Exec(context.Background(), `DELETE FROM agent_sessions WHERE session_key = $1`, key)
	return err
}

func (s *Store) List(agentID string) []store.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := ""
	if agentID != "" {
		prefix = "agent:" + agentID + ":"
	}
	var out []store.SessionInfo
	for key, r := range s.sessions {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, store.SessionInfo{
			Key:          key,
			MessageCount: len(r.Messages),
			Created:      s.created[key],
			Updated:      s.updated[key],
		})
	}
	return out
}

func (s *Store) ListPaged(opts store.SessionListOpts) store.SessionListResult {
	all := s.List(opts.AgentID)
	total := len(all)
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return store.SessionListResult{Sessions: all[start:end], Total: total}
}

// Save flushes the in-memory row for key to Postgres in a single upsert,
// matching the file backend's "persist on every turn" contract.
func (s *Store) Save(key string) error {
	s.mu.RLock()
	r, ok := s.sessions[key]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	snapshot := *r
	s.mu.RUnlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(context.Background(), `
		INSERT INTO agent_sessions (session_key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, key, data)
	return err
}

func (s *Store) LastUsedChannel(agentID string) (channel, chatID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := "agent:" + agentID + ":"
	var bestKey string
	var bestUpdated time.Time
	for key := range s.sessions {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		// Skip non-channel sessions (cron, subagent, heartbeat)
		rest := key[len(prefix):]
		if strings.HasPrefix(rest, "cron:") || strings.HasPrefix(rest, "subagent:") || strings.HasPrefix(rest, "heartbeat:") {
			continue
		}
		if u := s.updated[key]; u.After(bestUpdated) {
			bestUpdated = u
			bestKey = key
		}
	}
	if bestKey == "" {
		return "", ""
	}
	return sessions.ParseChannelChatID(bestKey)
}

func (s *Store) Close() {
	s.pool.Close()
}

func toSessionData(key string, r *row, created, updated time.Time) *store.SessionData {
	return &store.SessionData{
		Key:                        key,
		Messages:                   r.Messages,
		Summary:                    r.Summary,
		Created:                    created,
		Updated:                    updated,
		Model:                      r.Model,
		Provider:                   r.Provider,
		Channel:                    r.Channel,
		InputTokens:                r.InputTokens,
		OutputTokens:               r.OutputTokens,
		CompactionCount:            r.CompactionCount,
		MemoryFlushCompactionCount: r.MemoryFlushCompactionCount,
		MemoryFlushAt:              r.MemoryFlushAt,
		Label:                      r.Label,
		SpawnedBy:                  r.SpawnedBy,
		SpawnDepth:                 r.SpawnDepth,
		ContextWindow:              r.ContextWindow,
		LastPromptTokens:           r.LastPromptTokens,
		LastMessageCount:           r.LastMessageCount,
	}
}
