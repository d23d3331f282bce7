package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ironpaw/foreman/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "foreman.db")
	st, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSQLiteStoreConversationLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	conv, err := st.FindConversation(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FindConversation failed: %v", err)
	}
	if conv != nil {
		t.Fatalf("expected no conversation yet, got %+v", conv)
	}

	conv, err = st.CreateConversation(ctx, "sess-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.Step != models.StepStart {
		t.Errorf("expected start step, got %s", conv.Step)
	}

	conv.Step = models.Step(models.FieldDensity)
	conv.Answers[models.FieldAcreage] = "5 acres"
	conv.LastQuestion = "How dense is the vegetation? Light brush, heavy brush, or small trees?"
	if err := st.UpdateConversation(ctx, conv); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}

	got, err := st.FindConversation(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FindConversation after update failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation after update")
	}
	if got.Step != models.Step(models.FieldDensity) {
		t.Errorf("expected step Density, got %s", got.Step)
	}
	if got.Answers[models.FieldAcreage] != "5 acres" {
		t.Errorf("expected persisted answer, got %v", got.Answers)
	}
	if got.LastQuestion != conv.LastQuestion {
		t.Errorf("expected last question to persist, got %q", got.LastQuestion)
	}
}

func TestSQLiteStoreFirstRowAuthoritative(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateConversation(ctx, "sess-dup")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	first.Answers[models.FieldAcreage] = "original"
	if err := st.UpdateConversation(ctx, first); err != nil {
		t.Fatalf("UpdateConversation failed: %v", err)
	}

	// A duplicate row for the same session is an upstream anomaly; reads must
	// cap at one row and keep using the oldest.
	later := time.Now().Add(time.Hour)
	if _, err := st.db.Exec(
		`INSERT INTO conversations (session_id, step, answers, last_question, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"sess-dup", models.StepStart, nil, nil, later, later); err != nil {
		t.Fatalf("failed to insert duplicate row: %v", err)
	}

	got, err := st.FindConversation(ctx, "sess-dup")
	if err != nil {
		t.Fatalf("FindConversation failed: %v", err)
	}
	if got.Answers[models.FieldAcreage] != "original" {
		t.Errorf("expected the oldest row to win, got %v", got.Answers)
	}
}

func TestSQLiteStoreLeadsRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead := models.Lead{
		ID:        "lead-1",
		SessionID: "sess-1",
		Acreage:   "5 acres",
		Density:   "heavy brush",
		Terrain:   "hilly",
		Access:    "easy",
		Location:  "Travis County",
		Source:    models.LeadSource,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := st.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	leads, err := st.ListLeads(ctx)
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected one lead, got %d", len(leads))
	}
	got := leads[0]
	if got.ID != lead.ID || got.Location != lead.Location || got.Source != models.LeadSource {
		t.Errorf("unexpected lead: %+v", got)
	}
	if got.ContactName != "" || got.Phone != "" || got.Email != "" {
		t.Errorf("expected empty contact columns to scan as empty strings, got %+v", got)
	}
}

func TestSQLiteStoreListConversations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := st.CreateConversation(ctx, id); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	convs, err := st.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(convs))
	}
}

func TestNewSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN, got nil")
	}
}
