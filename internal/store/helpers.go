package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/ironpaw/foreman/internal/models"
)

// answersToJSON serializes the answers map for a TEXT column. An empty map is
// stored as the empty string.
func answersToJSON(answers map[string]string) (string, error) {
	if len(answers) == 0 {
		return "", nil
	}
	jsonBytes, err := json.Marshal(answers)
	if err != nil {
		return "", err
	}
	return string(jsonBytes), nil
}

// answersFromJSON deserializes the answers column. Corrupt data degrades to an
// empty map rather than failing the whole conversation load.
func answersFromJSON(answersJSON, sessionID string) map[string]string {
	answers := make(map[string]string)
	if answersJSON == "" {
		return answers
	}
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		slog.Error("store: answers JSON unmarshal failed, continuing with empty answers", "error", err, "sessionID", sessionID)
		return make(map[string]string)
	}
	return answers
}

// scanConversationRow scans a conversation from a single sql.Row.
func scanConversationRow(row *sql.Row) (*models.Conversation, error) {
	var conv models.Conversation
	var answersJSON, lastQuestion sql.NullString
	err := row.Scan(&conv.SessionID, &conv.Step, &answersJSON, &lastQuestion, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conv.Answers = answersFromJSON(answersJSON.String, conv.SessionID)
	conv.LastQuestion = lastQuestion.String
	return &conv, nil
}

// scanConversation scans a conversation from sql.Rows.
func scanConversation(rows *sql.Rows) (models.Conversation, error) {
	var conv models.Conversation
	var answersJSON, lastQuestion sql.NullString
	err := rows.Scan(&conv.SessionID, &conv.Step, &answersJSON, &lastQuestion, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return conv, err
	}
	conv.Answers = answersFromJSON(answersJSON.String, conv.SessionID)
	conv.LastQuestion = lastQuestion.String
	return conv, nil
}

// scanLead scans a lead from sql.Rows.
func scanLead(rows *sql.Rows) (models.Lead, error) {
	var l models.Lead
	var acreage, density, terrain, access, location, contactName, phone, email sql.NullString
	err := rows.Scan(&l.ID, &l.SessionID, &acreage, &density, &terrain, &access,
		&location, &contactName, &phone, &email, &l.Source, &l.CreatedAt)
	if err != nil {
		return l, err
	}
	l.Acreage = acreage.String
	l.Density = density.String
	l.Terrain = terrain.String
	l.Access = access.String
	l.Location = location.String
	l.ContactName = contactName.String
	l.Phone = phone.String
	l.Email = email.String
	return l, nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
