package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/nestlog/pkg/event"
)

// Prompts holds the system instructions of every stage and the canned
// replies. It is built once at startup and passed by value, so a running
// pipeline never observes a change.
type Prompts struct {
	Interpreter string  `yaml:"interpreter"`
	Classifier  string  `yaml:"classifier"`
	Extractor   string  `yaml:"extractor"`
	Replies     Replies `yaml:"replies"`
}

// Replies are the fixed assistant replies for intents that skip extraction
// and for degraded runs.
type Replies struct {
	Question            string `yaml:"question"`
	GeneralConversation string `yaml:"general_conversation"`
	OutOfScope          string `yaml:"out_of_scope"`
	Curriculum          string `yaml:"curriculum"`
	Logged              string `yaml:"logged"`
	NoEvents            string `yaml:"no_events"`
	NeedsDetail         string `yaml:"needs_detail"`
	ParseFailure        string `yaml:"parse_failure"`
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		Interpreter: interpreterPrompt,
		Classifier:  classifierPrompt,
		Extractor:   extractorPrompt(),
		Replies: Replies{
			Question:            "Good question. I've noted it, but I can only log events right now, so check the timeline for what's been recorded.",
			GeneralConversation: "Thanks for sharing! Let me know whenever there's something to log.",
			OutOfScope:          "I can only help with tracking your child's day, like feeds, sleep, diapers, health and milestones.",
			Curriculum:          "Thanks, I've saved this curriculum document to the timeline.",
			Logged:              "Got it, I've logged %d event(s).",
			NoEvents:            "I didn't find anything to log in that message.",
			NeedsDetail:         "I need a bit more detail before I can log that.",
			ParseFailure:        "Sorry, I had trouble understanding that. Could you rephrase it?",
		},
	}
}

// LoadPrompts returns the default prompts overlaid with the non-empty fields
// of a YAML file. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading prompts file: %w", err)
	}

	var overlay Prompts
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return p, fmt.Errorf("parsing prompts file %s: %w", path, err)
	}

	overlayString(&p.Interpreter, overlay.Interpreter)
	overlayString(&p.Classifier, overlay.Classifier)
	overlayString(&p.Extractor, overlay.Extractor)
	overlayString(&p.Replies.Question, overlay.Replies.Question)
	overlayString(&p.Replies.GeneralConversation, overlay.Replies.GeneralConversation)
	overlayString(&p.Replies.OutOfScope, overlay.Replies.OutOfScope)
	overlayString(&p.Replies.Curriculum, overlay.Replies.Curriculum)
	overlayString(&p.Replies.Logged, overlay.Replies.Logged)
	overlayString(&p.Replies.NoEvents, overlay.Replies.NoEvents)
	overlayString(&p.Replies.NeedsDetail, overlay.Replies.NeedsDetail)
	overlayString(&p.Replies.ParseFailure, overlay.Replies.ParseFailure)

	return p, nil
}

func overlayString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

const interpreterPrompt = `You read one file a parent attached while tracking their child's day.
Describe what the file shows and pull out anything worth recording.

Return ONLY a JSON object, no markdown, no extra text:
{
  "summary": "<one or two sentences>",
  "extractedText": "<verbatim text visible in the file, if any>",
  "keyFindings": ["<measurement, diagnosis, dose, grade, ...>"],
  "documentType": "<medical_report|growth_chart|prescription|school_report|curriculum|meal_plan|photo|other>",
  "documentDate": "<YYYY-MM-DD if the file states a date, else empty>",
  "confidence": <0.0-1.0>
}`

const classifierPrompt = `You label the intent of a parent's message in a child tracking app.

Categories:
- data_logging: the parent reports something that happened (feeding, sleep, diaper, health, growth, milestone, activity, mood, notes)
- question: the parent asks for information or advice
- general_conversation: greetings, thanks, chit-chat
- out_of_scope: unrelated to the child
- curriculum_document: the parent shares a school or learning curriculum

Return ONLY a JSON object, no markdown, no extra text:
{"category": "<category>", "confidence": <0.0-1.0>, "rationale": "<short reason>"}`

func extractorPrompt() string {
	var b strings.Builder
	b.WriteString(`You turn a parent's message into structured child tracking events.

Rules:
- One event per distinct happening. Items of one meal or one nap belong to a single event; different kinds of events, or the same kind at clearly different times, are separate events.
- Copy the words that say when it happened into "timeReference" verbatim ("at 2pm", "30 minutes ago", "yesterday at 3pm"). Leave it empty if the message does not say.
- "timestamp" is your best ISO 8601 guess in the parent's local time.
- Put measurements in "details" with numbers and units (e.g. {"amount": 120, "unit": "ml"}).
- Use a confidence below 0.5 when you are guessing, and ask a clarification question instead.

Categories and types:
`)
	for _, c := range event.Categories() {
		fmt.Fprintf(&b, "- %s: %s\n", c, strings.Join(event.Types(c), ", "))
	}
	b.WriteString(`
Return ONLY a JSON object, no markdown, no extra text:
{
  "events": [
    {
      "category": "<category>",
      "type": "<type>",
      "timestamp": "<ISO 8601>",
      "timeReference": "<verbatim time words>",
      "summary": "<short human readable summary>",
      "confidence": <0.0-1.0>,
      "details": {},
      "tags": [],
      "location": ""
    }
  ],
  "confidence": <0.0-1.0>,
  "reply": "<friendly confirmation for the parent>",
  "clarificationQuestions": []
}`)
	return b.String()
}
