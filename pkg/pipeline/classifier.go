package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/memory"
)

// fallbackClassification is used when the model cannot be reached or its
// verdict cannot be read.
var fallbackClassification = Classification{
	Intent:     IntentQuestion,
	Confidence: 0.2,
	Rationale:  "classification unavailable",
}

// Classifier labels the intent of a message.
type Classifier struct {
	gateway llm.Gateway
	prompt  string
	logger  *slog.Logger
}

type classifierReply struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Classify asks the model for an intent and applies the deterministic
// overrides. It returns the fallback and a non-nil error when no verdict
// could be obtained.
func (c *Classifier) Classify(ctx context.Context, req Request, contextText string, interp *AttachmentInterpretation) (Classification, error) {
	user := "Message: " + req.Text
	if interp != nil && interp.Summary != "" {
		user += fmt.Sprintf("\nAttached files (%s): %s", interp.Type, interp.Summary)
	}

	reply, err := c.gateway.Generate(ctx, llm.Prompt{
		System:  c.prompt,
		Context: contextText,
		User:    user,
	})
	if err != nil {
		return fallbackClassification, err
	}

	var cr classifierReply
	if err := llm.DecodeJSONReply(reply, &cr); err != nil {
		return fallbackClassification, err
	}
	intent, ok := ParseIntent(cr.Category)
	if !ok {
		return fallbackClassification, fmt.Errorf("%w: unknown category %q", llm.ErrNoJSON, cr.Category)
	}

	verdict := Classification{
		Intent:     intent,
		Confidence: clamp01(cr.Confidence),
		Rationale:  cr.Rationale,
	}
	return applyOverrides(verdict, req, interp), nil
}

// applyOverrides corrects the verdicts models most often get wrong: short
// answers to a pending clarification, trailing question marks and data
// bearing attachments.
func applyOverrides(v Classification, req Request, interp *AttachmentInterpretation) Classification {
	text := strings.TrimSpace(req.Text)

	switch {
	case answersClarification(text, req):
		if v.Intent == IntentQuestion {
			v.Intent = IntentDataLogging
			v.Rationale = "short answer to a clarification question"
		}
		return v

	case strings.HasSuffix(text, "?"):
		if v.Intent != IntentQuestion {
			v.Intent = IntentQuestion
			v.Rationale = "message ends with a question mark"
		}
		return v
	}

	if interp == nil || len(interp.Files) == 0 {
		return v
	}

	switch {
	case interp.Type == DocumentCurriculum:
		v.Intent = IntentCurriculumDocument
		v.Rationale = "curriculum attachment"
	case interp.Type.ReportLike() && (v.Intent == IntentQuestion || v.Intent == IntentGeneralConversation):
		v.Intent = IntentDataLogging
		v.Rationale = fmt.Sprintf("%s attachment", interp.Type)
	}
	return v
}

// answersClarification reports whether text is a short reply to the
// assistant's last turn when that turn asked something.
func answersClarification(text string, req Request) bool {
	words := strings.Fields(text)
	if len(words) > 8 || !answerShaped(text, words) {
		return false
	}
	for i := len(req.History) - 1; i >= 0; i-- {
		t := req.History[i]
		if t.Role != memory.RoleAssistant {
			continue
		}
		return len(t.Clarifications) > 0 || strings.HasSuffix(strings.TrimSpace(t.Text), "?")
	}
	return false
}

// interrogatives open questions rather than answers.
var interrogatives = map[string]bool{
	"how": true, "what": true, "when": true, "where": true, "why": true,
	"who": true, "whom": true, "whose": true, "which": true,
	"did": true, "does": true, "do": true, "is": true, "are": true,
	"was": true, "were": true, "am": true, "can": true, "could": true,
	"should": true, "shall": true, "will": true, "would": true,
	"has": true, "have": true, "had": true, "may": true, "might": true,
}

// answerShaped reports whether a message could be a factual answer. Text
// without a question mark always qualifies. With one, it must not open
// with an interrogative and must either carry a figure ("90ml?",
// "around 2pm?") or be a bare fragment ("formula?").
func answerShaped(text string, words []string) bool {
	if !strings.HasSuffix(text, "?") {
		return true
	}
	if len(words) == 0 {
		return false
	}
	lead := strings.ToLower(strings.Trim(words[0], "¿?!.,;:'\""))
	if interrogatives[lead] {
		return false
	}
	return strings.ContainsAny(text, "0123456789") || len(words) <= 3
}
