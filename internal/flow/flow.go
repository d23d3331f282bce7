// Package flow implements the intake questionnaire state machine.
//
// The engine is pure decision logic over a conversation snapshot: it decides
// which field an incoming message answers, what the next unanswered question
// is, and when the flow is complete. All mutation goes through the injected
// store, and every collaborator failure degrades to a usable reply.
package flow

import (
	"github.com/ironpaw/foreman/internal/models"
)

// Questionnaire is the ordered field/question sequence the engine walks.
// The ordering is the contract: the next pending field is always the first
// entry whose field is absent from the conversation's answers.
type Questionnaire []models.FlowStep

// DefaultQuestionnaire returns the five site questions asked of every lead.
func DefaultQuestionnaire() Questionnaire {
	return Questionnaire{
		{Field: models.FieldAcreage, Question: "About how many acres are you looking to clear?"},
		{Field: models.FieldDensity, Question: "How dense is the vegetation? Light brush, heavy brush, or small trees?"},
		{Field: models.FieldTerrain, Question: "Is the terrain mostly flat, hilly, or steep?"},
		{Field: models.FieldAccess, Question: "How is access for equipment? Easy access or somewhat limited?"},
		{Field: models.FieldLocation, Question: "What city or county is the property located in?"},
	}
}

// ContactQuestionnaire returns the site questions followed by the
// contact-detail questions, for deployments that collect callbacks.
func ContactQuestionnaire() Questionnaire {
	return append(DefaultQuestionnaire(),
		models.FlowStep{Field: models.FieldContactName, Question: "Who should our estimator ask for? First name is fine."},
		models.FlowStep{Field: models.FieldPhone, Question: "What's the best phone number to reach you at?"},
		models.FlowStep{Field: models.FieldEmail, Question: "And an email address for the written estimate?"},
	)
}

// NextPending returns the first step whose field has no answer yet.
func (q Questionnaire) NextPending(answers map[string]string) (models.FlowStep, bool) {
	for _, step := range q {
		if _, ok := answers[step.Field]; !ok {
			return step, true
		}
	}
	return models.FlowStep{}, false
}

// StepForQuestion returns the step whose question text matches exactly.
// The engine uses this to re-derive which field an incoming message answers
// from the question most recently asked.
func (q Questionnaire) StepForQuestion(question string) (models.FlowStep, bool) {
	for _, step := range q {
		if step.Question == question {
			return step, true
		}
	}
	return models.FlowStep{}, false
}

// OpeningQuestion is the first question of the flow; it doubles as the
// deterministic reply when the conversation record cannot be loaded at all.
func (q Questionnaire) OpeningQuestion() string {
	if len(q) == 0 {
		return ""
	}
	return q[0].Question
}
