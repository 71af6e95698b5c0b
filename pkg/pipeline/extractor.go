package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/event"
	"github.com/papercomputeco/nestlog/pkg/llm"
)

const (
	// MinCandidateConfidence is the floor below which a candidate becomes a
	// clarification question instead of an event.
	MinCandidateConfidence = 0.5

	// MergeWindow is how far apart two candidates of the same category and
	// type may be and still describe the same happening.
	MergeWindow = 20 * time.Minute

	defaultCandidateConfidence = 0.7
	failedExtractionConfidence = 0.1
)

// Extractor turns a message into event candidates.
type Extractor struct {
	gateway llm.Gateway
	prompt  string
	replies Replies
	logger  *slog.Logger
}

type extractorReply struct {
	Events          []rawCandidate `json:"events"`
	CandidateEvents []rawCandidate `json:"candidateEvents"`
	Confidence      any            `json:"confidence"`
	Reply           string         `json:"reply"`
	Clarifications  []string       `json:"clarificationQuestions"`
}

type rawCandidate struct {
	Category      string         `json:"category"`
	Type          string         `json:"type"`
	Timestamp     string         `json:"timestamp"`
	TimeReference string         `json:"timeReference"`
	Summary       string         `json:"summary"`
	Confidence    any            `json:"confidence"`
	Details       map[string]any `json:"details"`
	Tags          []string       `json:"tags"`
	Location      string         `json:"location"`
}

// Extract asks the model for candidates and normalizes what comes back. On a
// gateway or parse failure it returns zero candidates with the apology reply
// alongside the error; the Extraction is always usable.
func (x *Extractor) Extract(ctx context.Context, req Request, contextText string, interp *AttachmentInterpretation) (Extraction, error) {
	failed := Extraction{
		Confidence: failedExtractionConfidence,
		Reply:      x.replies.ParseFailure,
	}

	reply, err := x.gateway.Generate(ctx, llm.Prompt{
		System:      x.prompt,
		Context:     contextText,
		User:        extractorUserText(req, interp),
		Attachments: refsAsAttachments(req),
	})
	if err != nil {
		return failed, err
	}

	var er extractorReply
	if err := llm.DecodeJSONReply(reply, &er); err != nil {
		return failed, err
	}

	raw := er.Events
	if len(raw) == 0 {
		raw = er.CandidateEvents
	}

	var (
		kept           []event.Candidate
		clarifications = newStringSet()
		docDate        = interp.DocumentDate()
	)
	for _, q := range er.Clarifications {
		clarifications.add(q)
	}

	for _, rc := range raw {
		c, question, ok := x.normalize(rc, len(raw) == 1, req, docDate)
		if !ok {
			clarifications.add(question)
			continue
		}
		kept = append(kept, c)
	}

	kept = mergeCandidates(kept)

	out := Extraction{
		Candidates:     kept,
		Clarifications: clarifications.list(),
		Reply:          strings.TrimSpace(er.Reply),
	}

	if conf, ok := number(er.Confidence); ok {
		out.Confidence = clamp01(conf)
	} else {
		out.Confidence = averageConfidence(kept)
	}

	if out.Reply == "" {
		switch {
		case len(kept) > 0:
			out.Reply = fmt.Sprintf(x.replies.Logged, len(kept))
		case len(raw) > 0:
			out.Reply = x.replies.NeedsDetail
		default:
			out.Reply = x.replies.NoEvents
		}
	}
	return out, nil
}

// normalize validates one raw candidate. When the candidate cannot be kept
// it returns the clarification question to ask instead.
func (x *Extractor) normalize(rc rawCandidate, single bool, req Request, docDate *time.Time) (event.Candidate, string, bool) {
	summary := strings.TrimSpace(rc.Summary)
	if summary == "" {
		x.logger.Debug("dropping candidate without summary", "category", rc.Category)
		return event.Candidate{}, "Could you describe what happened in a bit more detail?", false
	}

	cat, ok := event.ParseCategory(rc.Category)
	if !ok {
		x.logger.Debug("dropping candidate with unknown category", "category", rc.Category, "summary", summary)
		return event.Candidate{}, fmt.Sprintf("What kind of event was %q?", summary), false
	}

	conf, ok := number(rc.Confidence)
	if !ok {
		conf = defaultCandidateConfidence
	}
	conf = clamp01(conf)
	if conf < MinCandidateConfidence {
		x.logger.Debug("dropping low confidence candidate", "summary", summary, "confidence", conf)
		return event.Candidate{}, fmt.Sprintf("Just to be sure, did you mean: %s?", summary), false
	}

	c := event.Candidate{
		Category:      cat,
		Type:          event.NormalizeType(cat, rc.Type),
		Timestamp:     resolveTimestamp(rc, single, req, docDate),
		Summary:       summary,
		Confidence:    conf,
		Details:       rc.Details,
		Tags:          rc.Tags,
		Location:      strings.TrimSpace(rc.Location),
		TimeReference: strings.TrimSpace(rc.TimeReference),
	}
	if c.Details == nil {
		c.Details = map[string]any{}
	}
	return c, "", true
}

// resolveTimestamp picks the event time. An attachment's own date wins, then
// the time words of the message resolved against the caller's clock, then
// the model's absolute guess, then the message time.
func resolveTimestamp(rc rawCandidate, single bool, req Request, docDate *time.Time) time.Time {
	now := req.LocalTime
	loc := now.Location()

	ref := rc.TimeReference
	if strings.TrimSpace(ref) == "" && single {
		ref = req.Text
	}
	res, resolved := ResolveTimeReference(ref, now)

	if docDate != nil {
		d := docDate.In(loc)
		if resolved && res.HasClock && res.Kind == KindRelative {
			return time.Date(d.Year(), d.Month(), d.Day(), res.Time.Hour(), res.Time.Minute(), res.Time.Second(), 0, loc)
		}
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	}

	if resolved {
		return res.Time
	}
	if t, ok := ParseAbsoluteTime(rc.Timestamp, loc); ok {
		return t
	}
	return now
}

// mergeCandidates folds candidates of the same category and type that fall
// within MergeWindow of the group's first member.
func mergeCandidates(in []event.Candidate) []event.Candidate {
	if len(in) < 2 {
		return in
	}

	type group struct {
		first   time.Time
		members []event.Candidate
	}
	var groups []*group

	for _, c := range in {
		var target *group
		for _, g := range groups {
			head := g.members[0]
			if head.Category != c.Category || head.Type != c.Type {
				continue
			}
			if absDuration(c.Timestamp.Sub(g.first)) <= MergeWindow {
				target = g
				break
			}
		}
		if target == nil {
			groups = append(groups, &group{first: c.Timestamp, members: []event.Candidate{c}})
			continue
		}
		target.members = append(target.members, c)
	}

	out := make([]event.Candidate, 0, len(groups))
	for _, g := range groups {
		out = append(out, foldGroup(g.members))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func foldGroup(members []event.Candidate) event.Candidate {
	if len(members) == 1 {
		return members[0]
	}

	merged := members[0]
	merged.Details = map[string]any{}
	summaries := make([]string, 0, len(members))
	items := make([]any, 0, len(members))
	tags := newStringSet()

	for _, m := range members {
		summaries = append(summaries, m.Summary)
		if m.Timestamp.Before(merged.Timestamp) {
			merged.Timestamp = m.Timestamp
		}
		if m.Confidence < merged.Confidence {
			merged.Confidence = m.Confidence
		}
		if merged.Location == "" {
			merged.Location = m.Location
		}
		for _, t := range m.Tags {
			tags.add(t)
		}

		item := map[string]any{"summary": m.Summary}
		for k, v := range m.Details {
			item[k] = v
			mergeField(merged.Details, k, v)
		}
		items = append(items, item)
	}

	merged.Summary = strings.Join(summaries, "; ")
	merged.Tags = tags.list()
	merged.Details["items"] = items
	return merged
}

// mergeField unions list values and keeps the first scalar seen.
func mergeField(dst map[string]any, key string, v any) {
	list, isList := asList(v)
	existing, present := dst[key]
	if !present {
		if isList {
			dst[key] = unionLists(nil, list)
			return
		}
		dst[key] = v
		return
	}

	if prev, ok := asList(existing); ok {
		if isList {
			dst[key] = unionLists(prev, list)
		} else {
			dst[key] = unionLists(prev, []any{v})
		}
	}
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func unionLists(a, b []any) []any {
	seen := map[string]bool{}
	out := make([]any, 0, len(a)+len(b))
	for _, v := range append(append([]any{}, a...), b...) {
		key := strings.ToLower(fmt.Sprint(v))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func extractorUserText(req Request, interp *AttachmentInterpretation) string {
	var b strings.Builder
	if interp != nil && len(interp.Files) > 0 {
		b.WriteString("Attached files:\n")
		for _, f := range interp.Files {
			fmt.Fprintf(&b, "- (%s) %s\n", f.Type, f.Summary)
			for _, k := range f.KeyFindings {
				fmt.Fprintf(&b, "  * %s\n", k)
			}
			if f.DocumentDate != nil {
				fmt.Fprintf(&b, "  dated %s\n", f.DocumentDate.Format("2006-01-02"))
			}
		}
	}
	b.WriteString("Message: ")
	b.WriteString(req.Text)
	return b.String()
}

func refsAsAttachments(req Request) []llm.Attachment {
	if len(req.Attachments) == 0 {
		return nil
	}
	out := make([]llm.Attachment, 0, len(req.Attachments))
	for _, r := range req.Attachments {
		out = append(out, r.Attachment())
	}
	return out
}

func averageConfidence(cs []event.Candidate) float64 {
	if len(cs) == 0 {
		return 0
	}
	var sum float64
	for _, c := range cs {
		sum += c.Confidence
	}
	return sum / float64(len(cs))
}

// number reads a model-supplied number that may arrive as a string.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// stringSet keeps case-insensitively unique strings in insertion order.
type stringSet struct {
	seen  map[string]bool
	items []string
}

func newStringSet() *stringSet { return &stringSet{seen: map[string]bool{}} }

func (s *stringSet) add(v string) {
	v = strings.TrimSpace(v)
	key := strings.ToLower(v)
	if v == "" || s.seen[key] {
		return
	}
	s.seen[key] = true
	s.items = append(s.items, v)
}

func (s *stringSet) list() []string { return s.items }
