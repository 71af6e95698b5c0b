package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/pipeline"
)

// ErrNoScript is returned by ScriptedGateway when no rule matches a prompt.
var ErrNoScript = errors.New("no scripted reply")

type scriptRule struct {
	system string
	reply  string
	err    error
	panics bool
	delay  time.Duration
}

// ScriptedGateway is an llm.Gateway that answers each pipeline stage with a
// canned reply, keyed on the stage's system prompt.
type ScriptedGateway struct {
	mu      sync.Mutex
	rules   []scriptRule
	prompts []llm.Prompt
	stages  pipeline.Prompts
}

// NewScriptedGateway creates a gateway scripted against DefaultPrompts.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{stages: pipeline.DefaultPrompts()}
}

// Interpret scripts the attachment interpreter reply.
func (g *ScriptedGateway) Interpret(reply string) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Interpreter, reply: reply})
}

// Classify scripts the classifier reply.
func (g *ScriptedGateway) Classify(reply string) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Classifier, reply: reply})
}

// Extract scripts the extractor reply.
func (g *ScriptedGateway) Extract(reply string) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Extractor, reply: reply})
}

// FailClassify makes the classifier call fail with err.
func (g *ScriptedGateway) FailClassify(err error) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Classifier, err: err})
}

// FailExtract makes the extractor call fail with err.
func (g *ScriptedGateway) FailExtract(err error) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Extractor, err: err})
}

// FailInterpret makes interpreter calls for the attachment at url fail.
func (g *ScriptedGateway) FailInterpret(url string, err error) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Interpreter + "\x00" + url, err: err})
}

// PanicExtract makes the extractor call panic.
func (g *ScriptedGateway) PanicExtract() *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Extractor, panics: true})
}

// SlowExtract delays the extractor reply, honouring ctx cancellation.
func (g *ScriptedGateway) SlowExtract(d time.Duration, reply string) *ScriptedGateway {
	return g.add(scriptRule{system: g.stages.Extractor, reply: reply, delay: d})
}

func (g *ScriptedGateway) add(r scriptRule) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, r)
	return g
}

// Prompts returns every prompt received so far.
func (g *ScriptedGateway) Prompts() []llm.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Prompt(nil), g.prompts...)
}

// CallsFor counts the prompts sent with the given system prompt.
func (g *ScriptedGateway) CallsFor(system string) int {
	n := 0
	for _, p := range g.Prompts() {
		if p.System == system {
			n++
		}
	}
	return n
}

// Generate implements llm.Gateway. Attachment-specific rules win over the
// generic rule of the same stage.
func (g *ScriptedGateway) Generate(ctx context.Context, p llm.Prompt) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, p)
	rule, ok := g.match(p)
	g.mu.Unlock()

	if !ok {
		return "", ErrNoScript
	}
	if rule.panics {
		panic("scripted gateway panic")
	}
	if rule.delay > 0 {
		select {
		case <-time.After(rule.delay):
		case <-ctx.Done():
			return "", llm.Unavailable("scripted", ctx.Err())
		}
	}
	if rule.err != nil {
		return "", rule.err
	}
	return rule.reply, nil
}

func (g *ScriptedGateway) match(p llm.Prompt) (scriptRule, bool) {
	for _, a := range p.Attachments {
		key := p.System + "\x00" + a.URL
		for _, r := range g.rules {
			if r.system == key {
				return r, true
			}
		}
	}
	for _, r := range g.rules {
		if r.system == p.System {
			return r, true
		}
	}
	return scriptRule{}, false
}
