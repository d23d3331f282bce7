// Package store provides storage backends for Foreman.
//
// This file implements the PostgreSQL-backed store for conversations and leads.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/ironpaw/foreman/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// FindConversation retrieves the conversation for a session, or (nil, nil)
// when none exists. The query is capped at one row; if duplicate rows exist
// for a session, the oldest is authoritative.
func (s *PostgresStore) FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	query := `SELECT session_id, step, answers, last_question, created_at, updated_at
			  FROM conversations WHERE session_id = $1 ORDER BY created_at LIMIT 1`

	conv, err := scanConversationRow(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore FindConversation not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore FindConversation failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to find conversation for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore FindConversation found", "sessionID", sessionID, "step", conv.Step)
	return conv, nil
}

// CreateConversation inserts a fresh conversation record at the start step.
func (s *PostgresStore) CreateConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	now := time.Now()
	conv := &models.Conversation{
		SessionID: sessionID,
		Step:      models.StepStart,
		Answers:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `INSERT INTO conversations (session_id, step, answers, last_question, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, query, conv.SessionID, conv.Step, nil, nil, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateConversation failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to create conversation for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore CreateConversation succeeded", "sessionID", sessionID)
	return conv, nil
}

// UpdateConversation persists the conversation snapshot.
func (s *PostgresStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	answersJSON, err := answersToJSON(conv.Answers)
	if err != nil {
		slog.Error("PostgresStore UpdateConversation JSON marshal failed", "error", err, "sessionID", conv.SessionID)
		return err
	}
	query := `UPDATE conversations SET step = $1, answers = $2, last_question = $3, updated_at = $4
			  WHERE session_id = $5`
	_, err = s.db.ExecContext(ctx, query, conv.Step, nilIfEmpty(answersJSON), nilIfEmpty(conv.LastQuestion), conv.UpdatedAt, conv.SessionID)
	if err != nil {
		slog.Error("PostgresStore UpdateConversation failed", "error", err, "sessionID", conv.SessionID)
		return fmt.Errorf("failed to update conversation for %s: %w", conv.SessionID, err)
	}
	slog.Debug("PostgresStore UpdateConversation succeeded", "sessionID", conv.SessionID, "step", conv.Step)
	return nil
}

// CreateLead inserts a lead record.
func (s *PostgresStore) CreateLead(ctx context.Context, lead models.Lead) error {
	query := `INSERT INTO leads (id, session_id, acreage, density, terrain, access, location, contact_name, phone, email, source, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query, lead.ID, lead.SessionID,
		nilIfEmpty(lead.Acreage), nilIfEmpty(lead.Density), nilIfEmpty(lead.Terrain),
		nilIfEmpty(lead.Access), nilIfEmpty(lead.Location), nilIfEmpty(lead.ContactName),
		nilIfEmpty(lead.Phone), nilIfEmpty(lead.Email), lead.Source, lead.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateLead failed", "error", err, "leadID", lead.ID, "sessionID", lead.SessionID)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.SessionID, err)
	}
	slog.Debug("PostgresStore CreateLead succeeded", "leadID", lead.ID, "sessionID", lead.SessionID)
	return nil
}

// ListLeads returns all lead records.
func (s *PostgresStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	query := `SELECT id, session_id, acreage, density, terrain, access, location, contact_name, phone, email, source, created_at
			  FROM leads ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("PostgresStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			slog.Error("PostgresStore ListLeads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListLeads rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("PostgresStore ListLeads succeeded", "count", len(leads))
	return leads, nil
}

// ListConversations returns all conversation records.
func (s *PostgresStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	query := `SELECT session_id, step, answers, last_question, created_at, updated_at
			  FROM conversations ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("PostgresStore ListConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			slog.Error("PostgresStore ListConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListConversations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	slog.Debug("PostgresStore ListConversations succeeded", "count", len(convs))
	return convs, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
