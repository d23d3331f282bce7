package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ironpaw/foreman/internal/flow"
	"github.com/ironpaw/foreman/internal/models"
	"github.com/ironpaw/foreman/internal/store"
)

// countingStore wraps the in-memory store and counts reads so tests can assert
// that input errors never touch persistence.
type countingStore struct {
	*store.InMemoryStore
	findCalls int
}

func (c *countingStore) FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	c.findCalls++
	return c.InMemoryStore.FindConversation(ctx, sessionID)
}

type countingCloser struct {
	calls int
	reply string
}

func (c *countingCloser) GenerateClosingReply(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	c.calls++
	return c.reply, nil
}

type findFailStore struct {
	*store.InMemoryStore
}

func (f *findFailStore) FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	return nil, context.DeadlineExceeded
}

type panicStore struct {
	*store.InMemoryStore
}

func (p *panicStore) FindConversation(ctx context.Context, sessionID string) (*models.Conversation, error) {
	panic("store gone")
}

type listFailStore struct {
	*store.InMemoryStore
}

func (l *listFailStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	return nil, context.DeadlineExceeded
}

func (l *listFailStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return nil, context.DeadlineExceeded
}

func newTestServer(st store.Store, flowOpts ...flow.Option) *Server {
	return NewServer(st, flow.NewEngine(st, flowOpts...))
}

func postMessage(t *testing.T, handler http.Handler, body, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeChatReply(t *testing.T, rec *httptest.ResponseRecorder) models.ChatReply {
	t.Helper()
	var reply models.ChatReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("failed to decode chat reply: %v (body: %s)", err, rec.Body.String())
	}
	return reply
}

func TestMessageHandlerHappyPath(t *testing.T) {
	srv := newTestServer(&countingStore{InMemoryStore: store.NewInMemoryStore()})

	rec := postMessage(t, srv.Handler(), `{"message":"5 acres"}`, "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	reply := decodeChatReply(t, rec)
	if !reply.OK {
		t.Errorf("expected ok reply, got %+v", reply)
	}
	want := flow.DefaultQuestionnaire()[1].Question
	if reply.ReplyText != want {
		t.Errorf("expected second question %q, got %q", want, reply.ReplyText)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected permissive CORS origin, got %q", got)
	}
}

func TestMessageHandlerEmptyMessageTouchesNothing(t *testing.T) {
	st := &countingStore{InMemoryStore: store.NewInMemoryStore()}
	closer := &countingCloser{reply: "unused"}
	srv := newTestServer(st, flow.WithClosingGenerator(closer))

	rec := postMessage(t, srv.Handler(), `{"message":"   "}`, "sess-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	reply := decodeChatReply(t, rec)
	if reply.OK {
		t.Error("expected ok=false for empty message")
	}
	if reply.Error != models.ErrEmptyMessage.Error() {
		t.Errorf("expected %q, got %q", models.ErrEmptyMessage.Error(), reply.Error)
	}
	if st.findCalls != 0 {
		t.Errorf("expected zero store reads, got %d", st.findCalls)
	}
	if closer.calls != 0 {
		t.Errorf("expected zero model calls, got %d", closer.calls)
	}
}

func TestMessageHandlerBadJSON(t *testing.T) {
	srv := newTestServer(&countingStore{InMemoryStore: store.NewInMemoryStore()})

	rec := postMessage(t, srv.Handler(), `{"message":`, "sess-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	reply := decodeChatReply(t, rec)
	if reply.OK || reply.Error != models.ErrInvalidJSON.Error() {
		t.Errorf("expected invalid JSON error, got %+v", reply)
	}
}

func TestMessageHandlerMethodNotAllowed(t *testing.T) {
	srv := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/message", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, "POST") {
		t.Errorf("expected Allow header to mention POST, got %q", allow)
	}
}

func TestMessageHandlerPreflight(t *testing.T) {
	srv := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodOptions, "/message", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "X-Session-ID") {
		t.Errorf("expected X-Session-ID in allowed headers, got %q", got)
	}
}

func TestMessageHandlerStoreFailureStillReplies(t *testing.T) {
	srv := newTestServer(&findFailStore{InMemoryStore: store.NewInMemoryStore()})

	rec := postMessage(t, srv.Handler(), `{"message":"5 acres"}`, "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite store failure, got %d", rec.Code)
	}
	reply := decodeChatReply(t, rec)
	if !reply.OK {
		t.Errorf("expected ok reply, got %+v", reply)
	}
	if reply.ReplyText != flow.DefaultQuestionnaire().OpeningQuestion() {
		t.Errorf("expected opening question fallback, got %q", reply.ReplyText)
	}
}

func TestMessageHandlerPanicRecovery(t *testing.T) {
	srv := newTestServer(&panicStore{InMemoryStore: store.NewInMemoryStore()})

	rec := postMessage(t, srv.Handler(), `{"message":"5 acres"}`, "sess-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after panic recovery, got %d", rec.Code)
	}
	reply := decodeChatReply(t, rec)
	if !reply.OK || reply.ReplyText != flow.FallbackClosing {
		t.Errorf("expected fallback closing reply, got %+v", reply)
	}
}

func TestMessageHandlerFullFlowOverHTTP(t *testing.T) {
	srv := newTestServer(store.NewInMemoryStore(), flow.WithClosingGenerator(&countingCloser{reply: "Sounds like a solid project."}))
	handler := srv.Handler()

	answers := []string{"5 acres", "heavy brush", "hilly", "easy access", "Travis County"}
	var last models.ChatReply
	for _, msg := range answers {
		body, _ := json.Marshal(models.ChatRequest{Message: msg})
		rec := postMessage(t, handler, string(body), "sess-flow")
		if rec.Code != http.StatusOK {
			t.Fatalf("message %q: expected 200, got %d", msg, rec.Code)
		}
		last = decodeChatReply(t, rec)
	}
	if last.ReplyText != "Sounds like a solid project." {
		t.Errorf("expected model closing reply, got %q", last.ReplyText)
	}

	rec := postMessage(t, handler, `{"message":"one more thing"}`, "sess-flow")
	if got := decodeChatReply(t, rec).ReplyText; got != flow.CompletionMessage {
		t.Errorf("expected completion message after terminal step, got %q", got)
	}
}

func TestLeadsHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.CreateLead(context.Background(), models.Lead{ID: "lead-1", SessionID: "s", Source: models.LeadSource}); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	srv := newTestServer(st)

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != models.APIStatusOK {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
}

func TestLeadsHandlerMethodNotAllowed(t *testing.T) {
	srv := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/leads", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestLeadsHandlerStoreFailure(t *testing.T) {
	srv := newTestServer(&listFailStore{InMemoryStore: store.NewInMemoryStore()})

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != models.APIStatusError {
		t.Errorf("expected error status, got %s", resp.Status)
	}
}

func TestConversationsHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := st.CreateConversation(context.Background(), "sess-1"); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	srv := newTestServer(st)

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != models.APIStatusOK {
		t.Errorf("expected ok status, got %s", resp.Status)
	}
}

func TestHealthHandlerHealthy(t *testing.T) {
	srv := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}
}

func TestHealthHandlerDegraded(t *testing.T) {
	srv := newTestServer(&listFailStore{InMemoryStore: store.NewInMemoryStore()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "degraded" {
		t.Errorf("expected degraded status, got %v", health["status"])
	}
}

func TestSessionFallbackSharesConversationByUserAgent(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(st)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"message":"5 acres"}`))
	req.Header.Set("User-Agent", "widget/1.0")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	req2 := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader(`{"message":"heavy brush"}`))
	req2.Header.Set("User-Agent", "widget/1.0")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)

	convs, err := st.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected both requests to share one conversation, got %d", len(convs))
	}
	if len(convs[0].Answers) != 2 {
		t.Errorf("expected two recorded answers, got %v", convs[0].Answers)
	}
}
