// Package store provides storage backends for Foreman.
//
// This file implements the SQLite-backed store for conversations and leads.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/ironpaw/foreman/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// FindConversation retrieves the conversation for a session, or (nil, nil)
// when none exists. The query is capped at one row; if duplicate rows exist
// for a session, the oldest is authoritative.
func (s *SQLiteStore) FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	query := `SELECT session_id, step, answers, last_question, created_at, updated_at
			  FROM conversations WHERE session_id = ? ORDER BY created_at LIMIT 1`

	conv, err := scanConversationRow(s.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore FindConversation not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore FindConversation failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to find conversation for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore FindConversation found", "sessionID", sessionID, "step", conv.Step)
	return conv, nil
}

// CreateConversation inserts a fresh conversation record at the start step.
func (s *SQLiteStore) CreateConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	now := time.Now()
	conv := &models.Conversation{
		SessionID: sessionID,
		Step:      models.StepStart,
		Answers:   make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `INSERT INTO conversations (session_id, step, answers, last_question, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, conv.SessionID, conv.Step, nil, nil, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateConversation failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to create conversation for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore CreateConversation succeeded", "sessionID", sessionID)
	return conv, nil
}

// UpdateConversation persists the conversation snapshot.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	answersJSON, err := answersToJSON(conv.Answers)
	if err != nil {
		slog.Error("SQLiteStore UpdateConversation JSON marshal failed", "error", err, "sessionID", conv.SessionID)
		return err
	}
	query := `UPDATE conversations SET step = ?, answers = ?, last_question = ?, updated_at = ?
			  WHERE session_id = ?`
	_, err = s.db.ExecContext(ctx, query, conv.Step, nilIfEmpty(answersJSON), nilIfEmpty(conv.LastQuestion), conv.UpdatedAt, conv.SessionID)
	if err != nil {
		slog.Error("SQLiteStore UpdateConversation failed", "error", err, "sessionID", conv.SessionID)
		return fmt.Errorf("failed to update conversation for %s: %w", conv.SessionID, err)
	}
	slog.Debug("SQLiteStore UpdateConversation succeeded", "sessionID", conv.SessionID, "step", conv.Step)
	return nil
}

// CreateLead inserts a lead record.
func (s *SQLiteStore) CreateLead(ctx context.Context, lead models.Lead) error {
	query := `INSERT INTO leads (id, session_id, acreage, density, terrain, access, location, contact_name, phone, email, source, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, lead.ID, lead.SessionID,
		nilIfEmpty(lead.Acreage), nilIfEmpty(lead.Density), nilIfEmpty(lead.Terrain),
		nilIfEmpty(lead.Access), nilIfEmpty(lead.Location), nilIfEmpty(lead.ContactName),
		nilIfEmpty(lead.Phone), nilIfEmpty(lead.Email), lead.Source, lead.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateLead failed", "error", err, "leadID", lead.ID, "sessionID", lead.SessionID)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.SessionID, err)
	}
	slog.Debug("SQLiteStore CreateLead succeeded", "leadID", lead.ID, "sessionID", lead.SessionID)
	return nil
}

// ListLeads returns all lead records.
func (s *SQLiteStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	query := `SELECT id, session_id, acreage, density, terrain, access, location, contact_name, phone, email, source, created_at
			  FROM leads ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("SQLiteStore ListLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			slog.Error("SQLiteStore ListLeads scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListLeads rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	slog.Debug("SQLiteStore ListLeads succeeded", "count", len(leads))
	return leads, nil
}

// ListConversations returns all conversation records.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	query := `SELECT session_id, step, answers, last_question, created_at, updated_at
			  FROM conversations ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("SQLiteStore ListConversations query failed", "error", err)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			slog.Error("SQLiteStore ListConversations scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListConversations rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	slog.Debug("SQLiteStore ListConversations succeeded", "count", len(convs))
	return convs, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
