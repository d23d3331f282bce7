package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ironpaw/foreman/internal/models"
	"github.com/ironpaw/foreman/internal/store"
)

// SystemPrompt is the fixed persona instruction sent with the closing summary.
const SystemPrompt = `You are the AI Foreman for IronPaw Forestry, LLC.

You guide landowners through a forestry mulching estimate.
You ask ONE clear question at a time.
You never repeat a question that was already answered.
You are calm, practical, and professional.

Do not give exact prices.
Explain that pricing depends on site conditions.
Always end with one follow-up question.`

// FallbackClosing is the reply used when the closing model call fails or no
// model is configured. The widget must always receive some reply.
const FallbackClosing = "Thanks for the details. The next step would be scheduling a site visit so we can give you an accurate estimate."

// CompletionMessage is the fixed reply for any message on a conversation that
// already reached the terminal step.
const CompletionMessage = "We've got everything we need for now — our estimator will reach out shortly. Is there anything else about the property we should know?"

// ClosingGenerator phrases the closing summary from the collected details.
// Implemented by genai.Client.
type ClosingGenerator interface {
	GenerateClosingReply(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// LeadNotifier announces a freshly created lead, e.g. by SMS to the crew.
type LeadNotifier interface {
	NotifyLead(ctx context.Context, lead models.Lead) error
}

// Opts holds configuration options for the flow engine.
type Opts struct {
	Questionnaire Questionnaire
	Closer        ClosingGenerator
	Notifier      LeadNotifier
	EmitLeads     bool
}

// Option defines a configuration option for the flow engine.
type Option func(*Opts)

// WithQuestionnaire replaces the default five-question flow.
func WithQuestionnaire(q Questionnaire) Option {
	return func(o *Opts) { o.Questionnaire = q }
}

// WithClosingGenerator enables model-phrased closing replies.
func WithClosingGenerator(c ClosingGenerator) Option {
	return func(o *Opts) { o.Closer = c }
}

// WithLeadNotifier enables lead notifications.
func WithLeadNotifier(n LeadNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithLeadEmission toggles lead record creation at flow completion.
func WithLeadEmission(emit bool) Option {
	return func(o *Opts) { o.EmitLeads = emit }
}

// Engine walks a conversation through the questionnaire, one message per call.
type Engine struct {
	st        store.Store
	steps     Questionnaire
	closer    ClosingGenerator
	notifier  LeadNotifier
	emitLeads bool
}

// NewEngine creates a flow engine over the given store. By default it runs the
// five-question flow with lead emission on and no model-phrased closing.
func NewEngine(st store.Store, opts ...Option) *Engine {
	cfg := Opts{Questionnaire: DefaultQuestionnaire(), EmitLeads: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Creating flow engine", "steps", len(cfg.Questionnaire), "emitLeads", cfg.EmitLeads,
		"closer_set", cfg.Closer != nil, "notifier_set", cfg.Notifier != nil)
	return &Engine{
		st:        st,
		steps:     cfg.Questionnaire,
		closer:    cfg.Closer,
		notifier:  cfg.Notifier,
		emitLeads: cfg.EmitLeads,
	}
}

// Advance processes one inbound message for a session and returns the reply.
//
// It never fails: collaborator errors are logged and absorbed so the
// conversational channel always gets a usable reply. The worst degraded
// outcome is re-asking a question on the next request, which first-answer-wins
// keeps harmless.
func (e *Engine) Advance(ctx context.Context, sessionID, message string) string {
	slog.Debug("Engine.Advance: processing message", "sessionID", sessionID)

	conv, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		slog.Error("Engine.Advance: conversation load failed, replying with opening question", "error", err, "sessionID", sessionID)
		return e.steps.OpeningQuestion()
	}

	// Terminal state is absorbing, even if some fields are somehow unset.
	if conv.Complete() {
		slog.Debug("Engine.Advance: conversation already complete", "sessionID", sessionID)
		return CompletionMessage
	}

	e.recordAnswer(ctx, conv, message)

	if next, ok := e.steps.NextPending(conv.Answers); ok {
		conv.Step = models.Step(next.Field)
		conv.LastQuestion = next.Question
		conv.UpdatedAt = time.Now()
		if err := e.st.UpdateConversation(ctx, conv); err != nil {
			slog.Error("Engine.Advance: step advance not persisted, continuing in-memory", "error", err, "sessionID", sessionID, "step", conv.Step)
		}
		slog.Debug("Engine.Advance: asking next question", "sessionID", sessionID, "field", next.Field)
		return next.Question
	}

	// All fields collected: one-time transition into the terminal step.
	conv.Step = models.StepComplete
	conv.LastQuestion = ""
	conv.UpdatedAt = time.Now()
	if err := e.st.UpdateConversation(ctx, conv); err != nil {
		slog.Error("Engine.Advance: completion not persisted", "error", err, "sessionID", sessionID)
	}
	slog.Info("Engine.Advance: conversation complete", "sessionID", sessionID, "answers", len(conv.Answers))

	e.emitLead(ctx, conv)
	return e.closingReply(ctx, conv)
}

// loadOrCreate resolves the conversation record for a session, creating it on
// the first message. The widget renders the opening question before the first
// message is sent, so a fresh record is initialized as having asked it; the
// first message then answers the first field like any other turn.
func (e *Engine) loadOrCreate(ctx context.Context, sessionID string) (*models.Conversation, error) {
	conv, err := e.st.FindConversation(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		conv, err = e.st.CreateConversation(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		if first, ok := e.steps.NextPending(conv.Answers); ok {
			conv.Step = models.Step(first.Field)
			conv.LastQuestion = first.Question
			conv.UpdatedAt = time.Now()
			if err := e.st.UpdateConversation(ctx, conv); err != nil {
				slog.Error("Engine.loadOrCreate: opening question not persisted, continuing in-memory", "error", err, "sessionID", sessionID)
			}
		}
		slog.Debug("Engine.loadOrCreate: created new conversation", "sessionID", sessionID)
	}
	if conv.Answers == nil {
		conv.Answers = make(map[string]string)
	}
	return conv, nil
}

// recordAnswer attributes the message to the field whose question was asked
// last and stores it, unless the field already holds an answer. A message
// arriving before any question was asked answers nothing.
func (e *Engine) recordAnswer(ctx context.Context, conv *models.Conversation, message string) {
	if conv.LastQuestion == "" {
		return
	}
	step, ok := e.steps.StepForQuestion(conv.LastQuestion)
	if !ok {
		slog.Warn("Engine.recordAnswer: last question not in configured flow, discarding message", "sessionID", conv.SessionID)
		return
	}
	if conv.Answered(step.Field) {
		slog.Debug("Engine.recordAnswer: field already answered, discarding message", "sessionID", conv.SessionID, "field", step.Field)
		return
	}
	conv.Answers[step.Field] = message
	conv.UpdatedAt = time.Now()
	if err := e.st.UpdateConversation(ctx, conv); err != nil {
		slog.Error("Engine.recordAnswer: answer not persisted, continuing in-memory", "error", err, "sessionID", conv.SessionID, "field", step.Field)
	}
	slog.Debug("Engine.recordAnswer: answer recorded", "sessionID", conv.SessionID, "field", step.Field)
}

// emitLead writes the denormalized lead record and notifies the crew.
// It only runs on the transition edge into the terminal step, so a lead is
// attempted at most once per conversation.
func (e *Engine) emitLead(ctx context.Context, conv *models.Conversation) {
	if !e.emitLeads {
		return
	}
	lead := models.NewLead(conv)
	if err := e.st.CreateLead(ctx, lead); err != nil {
		slog.Error("Engine.emitLead: lead not persisted", "error", err, "sessionID", conv.SessionID)
		return
	}
	slog.Info("Engine.emitLead: lead created", "leadID", lead.ID, "sessionID", conv.SessionID, "location", lead.Location)

	if e.notifier != nil {
		if err := e.notifier.NotifyLead(ctx, lead); err != nil {
			slog.Warn("Engine.emitLead: lead notification failed", "error", err, "leadID", lead.ID)
		}
	}
}

// closingReply asks the model to phrase the closing summary, falling back to
// the fixed closing sentence on any failure.
func (e *Engine) closingReply(ctx context.Context, conv *models.Conversation) string {
	if e.closer == nil {
		return FallbackClosing
	}
	reply, err := e.closer.GenerateClosingReply(ctx, SystemPrompt, e.closingPrompt(conv))
	if err != nil {
		slog.Error("Engine.closingReply: model call failed, using fallback", "error", err, "sessionID", conv.SessionID)
		return FallbackClosing
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("Engine.closingReply: model returned empty reply, using fallback", "sessionID", conv.SessionID)
		return FallbackClosing
	}
	return reply
}

// closingPrompt renders the collected details in flow order for the model.
func (e *Engine) closingPrompt(conv *models.Conversation) string {
	var b strings.Builder
	b.WriteString("Customer details:\n")
	for _, step := range e.steps {
		fmt.Fprintf(&b, "%s: %s\n", step.Field, conv.Answers[step.Field])
	}
	b.WriteString("\nExplain next steps and offer to schedule an estimate.")
	return b.String()
}
