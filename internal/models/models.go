// Package models defines the core data structures for Foreman.
//
// It includes the conversation record, lead record, and questionnaire step
// types shared across modules, plus the API response envelopes.
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Step identifies the conversation's position in the intake questionnaire.
// A step is either StepStart, the name of the field currently pending, or
// StepComplete.
type Step string

const (
	// StepStart is the position of a conversation before any question was asked.
	StepStart Step = "start"
	// StepComplete is the terminal position. It is permanent: a conversation
	// never leaves it and never re-enters the questionnaire.
	StepComplete Step = "complete"
)

// Field names for the intake questionnaire. Answers are keyed by these.
const (
	FieldAcreage     = "Acreage"
	FieldDensity     = "Density"
	FieldTerrain     = "Terrain"
	FieldAccess      = "Access"
	FieldLocation    = "Location"
	FieldContactName = "ContactName"
	FieldPhone       = "Phone"
	FieldEmail       = "Email"
)

// LeadSource tags every lead emitted by the chat widget.
const LeadSource = "foreman-chat"

// Validation error variables shared between transport and tests.
var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrInvalidJSON    = errors.New("invalid JSON format")
	ErrMissingSession = errors.New("session identifier could not be resolved")
)

// FlowStep is one entry of the intake questionnaire: the field the answer is
// stored under and the question text sent to the customer.
type FlowStep struct {
	Field    string `json:"field"`
	Question string `json:"question"`
}

// Conversation is the persisted state of one chat session. There is exactly
// one per session identifier and it is never deleted.
type Conversation struct {
	SessionID    string            `json:"session_id"`
	Step         Step              `json:"step"`
	Answers      map[string]string `json:"answers"`
	LastQuestion string            `json:"last_question,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Answered reports whether the given field already holds an answer.
// An answered field is never overwritten (first answer wins).
func (c *Conversation) Answered(field string) bool {
	_, ok := c.Answers[field]
	return ok
}

// Complete reports whether the conversation reached the terminal step.
func (c *Conversation) Complete() bool {
	return c.Step == StepComplete
}

// Lead is the denormalized snapshot of a completed conversation, written once
// at the transition into StepComplete.
type Lead struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Acreage     string    `json:"acreage,omitempty"`
	Density     string    `json:"density,omitempty"`
	Terrain     string    `json:"terrain,omitempty"`
	Access      string    `json:"access,omitempty"`
	Location    string    `json:"location,omitempty"`
	ContactName string    `json:"contact_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewLead builds a lead from the conversation's collected answers.
func NewLead(conv *Conversation) Lead {
	return Lead{
		ID:          uuid.NewString(),
		SessionID:   conv.SessionID,
		Acreage:     conv.Answers[FieldAcreage],
		Density:     conv.Answers[FieldDensity],
		Terrain:     conv.Answers[FieldTerrain],
		Access:      conv.Answers[FieldAccess],
		Location:    conv.Answers[FieldLocation],
		ContactName: conv.Answers[FieldContactName],
		Phone:       conv.Answers[FieldPhone],
		Email:       conv.Answers[FieldEmail],
		Source:      LeadSource,
		CreatedAt:   time.Now(),
	}
}

// ChatRequest is the body of the widget's POST /message call.
type ChatRequest struct {
	Message string `json:"message"`
}

// Validate checks the request before any collaborator is touched.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// ChatReply is the envelope returned to the widget on every reachable path.
// Downstream failures are absorbed into an OK reply carrying fallback text.
type ChatReply struct {
	OK        bool   `json:"ok"`
	ReplyText string `json:"reply_text,omitempty"`
	Error     string `json:"error,omitempty"`
}

// APIStatus represents the status of an admin API response.
type APIStatus string

const (
	// APIStatusOK indicates an admin API request succeeded.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an admin API request failed.
	APIStatusError APIStatus = "error"
)

// APIResponse is the envelope for the admin endpoints (leads, conversations,
// health). The widget endpoint uses ChatReply instead.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
