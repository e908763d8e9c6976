// Package style converts example posts into a structured writing-style
// profile the prompt builder can emulate.
package style

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/llm"
	"github.com/clipsmith/clipsmith/internal/parse"
	"github.com/clipsmith/clipsmith/internal/prompt"
	"github.com/clipsmith/clipsmith/internal/sanitize"
)

// MinExamples is the hard floor of valid example posts; requests below
// it are rejected before any model call.
const MinExamples = 3

// MaxExamples caps how many examples are embedded in the prompt.
const MaxExamples = 15

// analysisTemp favors fidelity over creativity.
const analysisTemp = 0.3

// ErrTooFewExamples is the terminal input error for a short example list.
var ErrTooFewExamples = fmt.Errorf("need at least %d example posts to analyze style", MinExamples)

// DegradedSummary marks a profile built from defaults after the model's
// response couldn't be parsed. Callers can detect the degraded case by
// this summary text.
const DegradedSummary = "Style analysis incomplete - using default patterns"

// Analyzer runs single-pass style analysis against an injected model
// client.
type Analyzer struct {
	llm    llm.Completer
	model  string
	logger *slog.Logger
}

func New(client llm.Completer, model string, logger *slog.Logger) *Analyzer {
	return &Analyzer{llm: client, model: model, logger: logger}
}

// Analyze distills a style profile from example posts. Each example is
// sanitized and capped before embedding; a parse failure yields the
// fixed default profile rather than an error.
func (a *Analyzer) Analyze(ctx context.Context, examples []string) (content.StyleProfile, error) {
	cleaned := sanitize.SanitizeArray(examples, sanitize.ArrayOptions{
		MaxLength: sanitize.ExampleMaxLength,
		MaxItems:  MaxExamples,
	})
	if len(cleaned) < MinExamples {
		return content.StyleProfile{}, ErrTooFewExamples
	}

	raw, err := a.llm.Complete(ctx, a.model, prompt.StyleAnalysisPrompt(cleaned), analysisTemp)
	if err != nil {
		return content.StyleProfile{}, fmt.Errorf("style analysis: %w", err)
	}

	var parsed content.StyleProfile
	if err := json.Unmarshal([]byte(parse.StripCodeFence(raw)), &parsed); err != nil {
		a.logger.Warn("style analysis output unparseable, using default profile", "error", err)
		return defaultProfile(), nil
	}
	return withDefaults(parsed), nil
}

// withDefaults fills any field the model left blank, favoring partial
// results over the full default profile.
func withDefaults(p content.StyleProfile) content.StyleProfile {
	if p.Tone == "" {
		p.Tone = "engaging"
	}
	if p.Vocabulary == "" {
		p.Vocabulary = "varied"
	}
	if p.SentenceStructure == "" {
		p.SentenceStructure = "mixed"
	}
	if p.Hooks == "" {
		p.Hooks = "direct statements"
	}
	if p.Patterns == nil {
		p.Patterns = []string{}
	}
	if p.Summary == "" {
		p.Summary = "No summary available"
	}
	return p
}

func defaultProfile() content.StyleProfile {
	return content.StyleProfile{
		Tone:              "engaging",
		Vocabulary:        "varied",
		SentenceStructure: "mixed",
		Hooks:             "direct statements",
		Patterns:          []string{},
		Summary:           DegradedSummary,
	}
}

// IsDegraded reports whether a profile is the parse-failure default.
func IsDegraded(p content.StyleProfile) bool {
	return p.Summary == DegradedSummary
}

// IsInputError reports whether err belongs to the terminal input-error
// taxonomy (as opposed to a transport failure).
func IsInputError(err error) bool {
	return errors.Is(err, ErrTooFewExamples)
}
