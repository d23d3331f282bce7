// Package store provides storage backends for Foreman conversations and leads.
//
// It includes an in-memory store for tests and single-process deployments,
// plus SQLite and PostgreSQL backends selected by DSN detection.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ironpaw/foreman/internal/models"
)

// Store is the persistence capability injected into the flow engine.
//
// Every call may fail (network, auth, quota); callers own the fallback policy.
// FindConversation returns (nil, nil) when no record exists for the session.
type Store interface {
	FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, sessionID string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	CreateLead(ctx context.Context, lead models.Lead) error
	ListLeads(ctx context.Context) ([]models.Lead, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// NewStore builds a store from options: in-memory when no DSN is configured,
// otherwise SQLite or PostgreSQL by DSN detection.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// InMemoryStore is a mutex-guarded map-backed store.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	leads         []models.Lead
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*models.Conversation)}
}

// FindConversation returns the conversation for a session, or (nil, nil).
func (s *InMemoryStore) FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneConversation(conv), nil
}

// CreateConversation initializes and stores a fresh conversation record.
func (s *InMemoryStore) CreateConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	conv := &models.Conversation{
		SessionID: sessionID,
		Step:      models.StepStart,
		Answers:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[sessionID] = conv
	return cloneConversation(conv), nil
}

// UpdateConversation replaces the stored record with the given snapshot.
func (s *InMemoryStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.SessionID] = cloneConversation(conv)
	return nil
}

// CreateLead appends a lead record.
func (s *InMemoryStore) CreateLead(ctx context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	return nil
}

// ListLeads returns all lead records.
func (s *InMemoryStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leads := make([]models.Lead, len(s.leads))
	copy(leads, s.leads)
	return leads, nil
}

// ListConversations returns all conversation records.
func (s *InMemoryStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convs := make([]models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, *cloneConversation(conv))
	}
	return convs, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// cloneConversation copies a conversation so callers cannot mutate stored
// state without going through UpdateConversation.
func cloneConversation(conv *models.Conversation) *models.Conversation {
	out := *conv
	out.Answers = make(map[string]string, len(conv.Answers))
	for k, v := range conv.Answers {
		out.Answers[k] = v
	}
	return &out
}
