// Package agent exposes the generation capabilities as tools behind a
// conversational streaming loop. Each user turn may trigger tool calls
// chosen by the model before a final natural-language response.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/llm"
	"github.com/clipsmith/clipsmith/internal/parse"
	"github.com/clipsmith/clipsmith/internal/prompt"
	"github.com/clipsmith/clipsmith/internal/style"
	"github.com/clipsmith/clipsmith/internal/transcript"
)

// Tool temperatures mirror the standalone paths: generation runs warm,
// critique cool, refinement in between.
const (
	generateTemp = 0.7
	critiqueTemp = 0.2
	refineTemp   = 0.3
)

// Toolbox executes the agent's tools. All model access goes through the
// injected Completer so tests can fake it.
type Toolbox struct {
	llm            llm.Completer
	analyzer       *style.Analyzer
	resolver       *transcript.Resolver
	generatorModel string
	criticModel    string
	logger         *slog.Logger
}

func NewToolbox(client llm.Completer, analyzer *style.Analyzer, resolver *transcript.Resolver, generatorModel, criticModel string, logger *slog.Logger) *Toolbox {
	return &Toolbox{
		llm:            client,
		analyzer:       analyzer,
		resolver:       resolver,
		generatorModel: generatorModel,
		criticModel:    criticModel,
		logger:         logger,
	}
}

// Definitions declares every tool to the model.
func (t *Toolbox) Definitions() []llm.Tool {
	return []llm.Tool{
		tool("analyze_style",
			"Analyze 3-15 example posts to extract writing style characteristics. Returns a style profile usable for content generation.",
			`{"type":"object","properties":{"examples":{"type":"array","items":{"type":"string"},"description":"Example posts to analyze"}},"required":["examples"]}`),
		tool("generate_tweets",
			"Generate tweets from a transcript or text source, optionally in a specific writing style.",
			`{"type":"object","properties":{"transcript":{"type":"string"},"count":{"type":"integer","minimum":1,"maximum":20},"tone":{"type":"string"},"purpose":{"type":"string"},"style":{"type":"object"}},"required":["transcript"]}`),
		tool("generate_script",
			"Generate a script on a new topic using the voice of a reference transcript.",
			`{"type":"object","properties":{"referenceTranscript":{"type":"string"},"topic":{"type":"string"},"purpose":{"type":"string"},"style":{"type":"object"}},"required":["referenceTranscript","topic"]}`),
		tool("critique_content",
			"Critique content items and return scores and improvement suggestions. Uses a fast model.",
			`{"type":"object","properties":{"items":{"type":"array","items":{"type":"object","properties":{"id":{"type":"string"},"content":{"type":"string"}},"required":["id","content"]}},"transcript":{"type":"string"}},"required":["items","transcript"]}`),
		tool("refine_content",
			"Refine a single content item based on critic feedback.",
			`{"type":"object","properties":{"item":{"type":"object","properties":{"id":{"type":"string"},"content":{"type":"string"}},"required":["id","content"]},"feedback":{"type":"object","properties":{"issues":{"type":"array","items":{"type":"string"}},"fixSuggestion":{"type":"string"}}},"transcript":{"type":"string"},"tone":{"type":"string"}},"required":["item","transcript"]}`),
		tool("fetch_transcript",
			"Fetch a transcript from a URL.",
			`{"type":"object","properties":{"transcriptUrl":{"type":"string","format":"uri"}},"required":["transcriptUrl"]}`),
	}
}

func tool(name, description, params string) llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(params),
		},
	}
}

// Execute runs one tool call and returns its JSON-encoded result. Errors
// are returned to the caller, which forwards them to the model as an
// error payload rather than aborting the turn.
func (t *Toolbox) Execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "analyze_style":
		return t.analyzeStyle(ctx, args)
	case "generate_tweets":
		return t.generateTweets(ctx, args)
	case "generate_script":
		return t.generateScript(ctx, args)
	case "critique_content":
		return t.critiqueContent(ctx, args)
	case "refine_content":
		return t.refineContent(ctx, args)
	case "fetch_transcript":
		return t.fetchTranscript(ctx, args)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (t *Toolbox) analyzeStyle(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Examples []string `json:"examples"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("analyze_style args: %w", err)
	}
	profile, err := t.analyzer.Analyze(ctx, in.Examples)
	if err != nil {
		return "", err
	}
	return marshal(profile)
}

func (t *Toolbox) generateTweets(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Transcript string                `json:"transcript"`
		Count      int                   `json:"count"`
		Tone       string                `json:"tone"`
		Purpose    string                `json:"purpose"`
		Style      *content.StyleProfile `json:"style"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("generate_tweets args: %w", err)
	}
	count := in.Count
	if count <= 0 {
		count = content.DefaultBatchSizes[content.FormatTweet]
	}

	p := prompt.Build(prompt.Input{
		Format:     content.FormatTweet,
		Transcript: in.Transcript,
		Tone:       in.Tone,
		Count:      count,
		Style:      in.Style,
		Purpose:    in.Purpose,
	})
	raw, err := t.llm.Complete(ctx, t.generatorModel, p, generateTemp)
	if err != nil {
		return "", err
	}

	type tweet struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		CharCount int    `json:"charCount"`
	}
	items := parse.Normalize(raw, content.FormatTweet, in.Tone)
	out := struct {
		Items []tweet `json:"items"`
		Error string  `json:"error,omitempty"`
	}{Items: []tweet{}}
	if len(items) == 0 {
		out.Error = "failed to parse generated content"
	}
	for i, it := range items {
		out.Items = append(out.Items, tweet{
			ID:        fmt.Sprintf("tweet-%d", i+1),
			Content:   it.Content,
			CharCount: len(it.Content),
		})
	}
	return marshal(out)
}

func (t *Toolbox) generateScript(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		ReferenceTranscript string                `json:"referenceTranscript"`
		Topic               string                `json:"topic"`
		Purpose             string                `json:"purpose"`
		Style               *content.StyleProfile `json:"style"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("generate_script args: %w", err)
	}

	p := prompt.ScriptPrompt(in.ReferenceTranscript, in.Topic, in.Style, in.Purpose)
	raw, err := t.llm.Complete(ctx, t.generatorModel, p, generateTemp)
	if err != nil {
		return "", err
	}

	out := struct {
		Script     string `json:"script"`
		StyleNotes string `json:"styleNotes"`
	}{}
	if err := json.Unmarshal([]byte(parse.StripCodeFence(raw)), &out); err != nil || out.Script == "" {
		// Keep the raw script text if the model skipped the JSON wrapper.
		out.Script = raw
		out.StyleNotes = "Output format error - returning raw script"
	} else if out.StyleNotes == "" {
		out.StyleNotes = "Style matching attempted"
	}
	return marshal(out)
}

func (t *Toolbox) critiqueContent(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Items []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"items"`
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("critique_content args: %w", err)
	}

	itemsJSON, _ := json.Marshal(in.Items)
	raw, err := t.llm.Complete(ctx, t.criticModel, prompt.CriticPrompt(string(itemsJSON), in.Transcript), critiqueTemp)
	if err != nil {
		return "", err
	}

	type critique struct {
		ID            string   `json:"id"`
		OK            bool     `json:"ok"`
		Score         float64  `json:"score"`
		Issues        []string `json:"issues"`
		FixSuggestion string   `json:"fixSuggestion"`
	}
	out := struct {
		Critiques []critique `json:"critiques"`
	}{Critiques: []critique{}}

	var parsed []content.CriticFeedback
	if err := json.Unmarshal([]byte(parse.StripCodeFence(raw)), &parsed); err != nil {
		// Neutral fallback so the agent can keep going without critique.
		t.logger.Warn("critique tool output unparseable, returning neutral scores", "error", err)
		for _, it := range in.Items {
			out.Critiques = append(out.Critiques, critique{ID: it.ID, OK: true, Score: 6, Issues: []string{}})
		}
		return marshal(out)
	}
	for _, fb := range parsed {
		issues := fb.Issues
		if issues == nil {
			issues = []string{}
		}
		out.Critiques = append(out.Critiques, critique{
			ID:            fb.ID,
			OK:            fb.OK,
			Score:         fb.Score,
			Issues:        issues,
			FixSuggestion: fb.FixSuggestion,
		})
	}
	return marshal(out)
}

func (t *Toolbox) refineContent(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Item struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"item"`
		Feedback struct {
			Issues        []string `json:"issues"`
			FixSuggestion string   `json:"fixSuggestion"`
		} `json:"feedback"`
		Transcript string `json:"transcript"`
		Tone       string `json:"tone"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("refine_content args: %w", err)
	}

	item := content.GeneratedItem{ID: in.Item.ID, Content: in.Item.Content}
	fb := content.CriticFeedback{
		ID:            in.Item.ID,
		Issues:        in.Feedback.Issues,
		FixSuggestion: in.Feedback.FixSuggestion,
	}
	raw, err := t.llm.Complete(ctx, t.generatorModel, prompt.RefinerPrompt(item, fb, in.Transcript, in.Tone), refineTemp)
	if err != nil {
		return "", err
	}

	out := struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		CharCount int    `json:"charCount"`
		Refined   bool   `json:"refined"`
	}{ID: in.Item.ID, Content: in.Item.Content, Refined: false}

	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(parse.StripCodeFence(raw)), &parsed); err == nil && parsed.Content != "" {
		out.Content = parsed.Content
		out.Refined = true
	}
	out.CharCount = len(out.Content)
	return marshal(out)
}

func (t *Toolbox) fetchTranscript(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		TranscriptURL string `json:"transcriptUrl"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("fetch_transcript args: %w", err)
	}
	text, err := t.resolver.Resolve(ctx, "", in.TranscriptURL)
	if err != nil {
		return "", err
	}
	return marshal(struct {
		Text   string `json:"text"`
		Length int    `json:"length"`
	}{Text: text, Length: len(text)})
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}
