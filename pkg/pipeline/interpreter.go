package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/nestlog/pkg/attachments"
	"github.com/papercomputeco/nestlog/pkg/llm"
)

// Interpreter summarizes attachments with one model call per file.
type Interpreter struct {
	gateway     llm.Gateway
	prompt      string
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

type fileReply struct {
	Summary       string   `json:"summary"`
	ExtractedText string   `json:"extractedText"`
	KeyFindings   []string `json:"keyFindings"`
	DocumentType  string   `json:"documentType"`
	DocumentDate  string   `json:"documentDate"`
	Confidence    float64  `json:"confidence"`
}

// Interpret reads every attachment concurrently. Files that fail are listed
// in Failures; the rest are kept. It returns nil when there is nothing to
// read.
func (i *Interpreter) Interpret(ctx context.Context, refs []attachments.Ref, text string, loc *time.Location) *AttachmentInterpretation {
	if len(refs) == 0 {
		return nil
	}

	summaries := make([]*AttachmentSummary, len(refs))
	failures := make([]string, len(refs))

	g := new(errgroup.Group)
	g.SetLimit(i.concurrency)

	for idx, ref := range refs {
		g.Go(func() error {
			s, err := i.interpretFile(ctx, ref, text, loc)
			if err != nil {
				i.logger.Warn("attachment interpretation failed", "attachment_id", ref.ID, "error", err)
				failures[idx] = fmt.Sprintf("%s: %v", ref.ID, err)
				return nil
			}
			summaries[idx] = s
			return nil
		})
	}
	_ = g.Wait()

	interp := &AttachmentInterpretation{}
	for idx := range refs {
		if summaries[idx] != nil {
			interp.Files = append(interp.Files, *summaries[idx])
		}
		if failures[idx] != "" {
			interp.Failures = append(interp.Failures, failures[idx])
		}
	}
	interp.Summary = aggregateSummary(interp.Files)
	interp.Type = aggregateType(interp.Files)
	return interp
}

func (i *Interpreter) interpretFile(ctx context.Context, ref attachments.Ref, text string, loc *time.Location) (*AttachmentSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	user := "Interpret the attached file."
	if strings.TrimSpace(text) != "" {
		user += "\nThe parent wrote: " + text
	}

	reply, err := i.gateway.Generate(ctx, llm.Prompt{
		System:      i.prompt,
		User:        user,
		Attachments: []llm.Attachment{ref.Attachment()},
	})
	if err != nil {
		return nil, err
	}

	var fr fileReply
	if err := llm.DecodeJSONReply(reply, &fr); err != nil {
		return nil, err
	}
	if strings.TrimSpace(fr.Summary) == "" {
		return nil, fmt.Errorf("%w: empty summary", llm.ErrNoJSON)
	}

	s := &AttachmentSummary{
		AttachmentID:  ref.ID,
		Summary:       strings.TrimSpace(fr.Summary),
		ExtractedText: fr.ExtractedText,
		KeyFindings:   fr.KeyFindings,
		Type:          ParseDocumentType(fr.DocumentType),
		Confidence:    clamp01(fr.Confidence),
	}
	if d, ok := ParseAbsoluteTime(fr.DocumentDate, loc); ok {
		d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		s.DocumentDate = &d
	}
	return s, nil
}

func aggregateSummary(files []AttachmentSummary) string {
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, f.Summary)
	}
	return strings.Join(parts, "\n")
}

// aggregateType is the most frequent type, ties broken by the summed
// confidence of the files of each type.
func aggregateType(files []AttachmentSummary) DocumentType {
	if len(files) == 0 {
		return DocumentOther
	}

	type score struct {
		t          DocumentType
		count      int
		confidence float64
	}
	byType := map[DocumentType]*score{}
	var order []*score
	for _, f := range files {
		s, ok := byType[f.Type]
		if !ok {
			s = &score{t: f.Type}
			byType[f.Type] = s
			order = append(order, s)
		}
		s.count++
		s.confidence += f.Confidence
	}

	sort.SliceStable(order, func(a, b int) bool {
		if order[a].count != order[b].count {
			return order[a].count > order[b].count
		}
		return order[a].confidence > order[b].confidence
	})
	return order[0].t
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
