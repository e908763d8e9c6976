package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/transcript"
)

// fakeLLM routes completions through a handler and records every call.
type fakeLLM struct {
	mu      sync.Mutex
	handler func(model, prompt string) (string, error)
	calls   []string // model ids in call order
}

func (f *fakeLLM) Complete(_ context.Context, model, prompt string, _ float64) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, model)
	f.mu.Unlock()
	return f.handler(model, prompt)
}

func (f *fakeLLM) callCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m == model {
			n++
		}
	}
	return n
}

var testModels = Models{Generator: "gen-model", Critic: "critic-model", Refiner: "refine-model"}

func newTestOrchestrator(handler func(model, prompt string) (string, error)) (*Orchestrator, *fakeLLM) {
	fake := &fakeLLM{handler: handler}
	o := New(fake, transcript.NewResolver(), testModels, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return o, fake
}

func allGoodCritic(ids ...string) string {
	var entries []string
	for _, id := range ids {
		entries = append(entries, `{"id":"`+id+`","ok":true,"score":9,"issues":[],"fix_suggestion":""}`)
	}
	return "[" + strings.Join(entries, ",") + "]"
}

func TestRun_HappyPath(t *testing.T) {
	o, fake := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"a"},{"content":"b"},{"content":"c"}]}`, nil
		case "critic-model":
			return allGoodCritic("item-1", "item-2", "item-3"), nil
		default:
			return "", errors.New("refiner should not be called")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "the transcript", Format: content.FormatTweet, Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(res.Items))
	}
	wantIDs := []string{"item-1", "item-2", "item-3"}
	wantContent := []string{"a", "b", "c"}
	for i := range res.Items {
		if res.Items[i].ID != wantIDs[i] || res.Items[i].Content != wantContent[i] {
			t.Errorf("item %d = %+v", i, res.Items[i])
		}
	}
	if fake.callCount("refine-model") != 0 {
		t.Error("no item should have been refined")
	}
	if res.PassMeta.Passes != 3 || res.PassMeta.GeneratorModel != "gen-model" || res.PassMeta.CriticModel != "critic-model" {
		t.Errorf("pass meta = %+v", res.PassMeta)
	}
	if res.PassMeta.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestRun_CriticFailureFallsBackToHeuristic(t *testing.T) {
	o, fake := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"first item"},{"content":"xx"}]}`, nil
		case "critic-model":
			return "I cannot produce JSON today", nil
		default:
			return "", errors.New("refiner must not run on heuristic feedback")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Final batch equals generator output verbatim; nothing refined even
	// though heuristic pseudo-scores can fall below the threshold.
	if res.Items[0].Content != "first item" || res.Items[1].Content != "xx" {
		t.Errorf("items mutated: %+v", res.Items)
	}
	if fake.callCount("refine-model") != 0 {
		t.Error("heuristic feedback must never trigger refinement")
	}
}

func TestRun_CriticTransportErrorFallsBackToHeuristic(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"a"}]}`, nil
		case "critic-model":
			return "", errors.New("connection reset")
		default:
			return "", errors.New("unexpected refine")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("critic transport failure must not fail the run: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Content != "a" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestRun_RefinesFlaggedItem(t *testing.T) {
	o, fake := newTestOrchestrator(func(model, prompt string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"weak"},{"content":"fine"}]}`, nil
		case "critic-model":
			return `[
				{"id":"item-1","ok":false,"score":3,"issues":["weak hook"],"fix_suggestion":"Start stronger"},
				{"id":"item-2","ok":true,"score":9,"issues":[],"fix_suggestion":""}
			]`, nil
		default:
			if !strings.Contains(prompt, "weak hook") || !strings.Contains(prompt, "Start stronger") {
				t.Errorf("refiner prompt missing critic feedback")
			}
			return `{"id":"something-else","content":"Stronger version"}`, nil
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items[0].Content != "Stronger version" {
		t.Errorf("item-1 content = %q, want refined", res.Items[0].Content)
	}
	if res.Items[0].ID != "item-1" {
		t.Errorf("identity must anchor to pre-refinement id, got %q", res.Items[0].ID)
	}
	if res.Items[1].Content != "fine" {
		t.Errorf("item-2 should be untouched, got %q", res.Items[1].Content)
	}
	if n := fake.callCount("refine-model"); n != 1 {
		t.Errorf("refiner called %d times, want 1", n)
	}
}

func TestRun_RefinementThreshold(t *testing.T) {
	tests := []struct {
		name       string
		ok         bool
		score      float64
		wantRefine bool
	}{
		{"ok high score passes through", true, 9, false},
		{"ok at threshold passes through", true, 7, false},
		{"ok below threshold refined", true, 6, true},
		{"not ok refined despite high score", false, 9, true},
		{"not ok low score refined", false, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, fake := newTestOrchestrator(func(model, _ string) (string, error) {
				switch model {
				case "gen-model":
					return `{"items":[{"content":"only"}]}`, nil
				case "critic-model":
					ok := "true"
					if !tt.ok {
						ok = "false"
					}
					score := strconv.FormatFloat(tt.score, 'f', -1, 64)
					return `[{"id":"item-1","ok":` + ok + `,"score":` + score + `,"issues":[],"fix_suggestion":""}]`, nil
				default:
					return `{"content":"rewritten"}`, nil
				}
			})

			res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			refined := fake.callCount("refine-model") == 1
			if refined != tt.wantRefine {
				t.Errorf("refined = %v, want %v", refined, tt.wantRefine)
			}
			wantContent := "only"
			if tt.wantRefine {
				wantContent = "rewritten"
			}
			if res.Items[0].Content != wantContent {
				t.Errorf("content = %q, want %q", res.Items[0].Content, wantContent)
			}
		})
	}
}

func TestRun_RefineFailureIsIsolated(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, prompt string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"alpha"},{"content":"beta"}]}`, nil
		case "critic-model":
			return `[
				{"id":"item-1","ok":false,"score":2,"issues":["x"],"fix_suggestion":"y"},
				{"id":"item-2","ok":false,"score":2,"issues":["x"],"fix_suggestion":"y"}
			]`, nil
		default:
			if strings.Contains(prompt, "alpha") {
				return "totally not json", nil
			}
			return `{"content":"beta improved"}`, nil
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items[0].Content != "alpha" {
		t.Errorf("failed refine must keep original, got %q", res.Items[0].Content)
	}
	if res.Items[1].Content != "beta improved" {
		t.Errorf("other item's refine must not be affected, got %q", res.Items[1].Content)
	}
}

func TestRun_RefineTransportErrorKeepsOriginal(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"keep me"}]}`, nil
		case "critic-model":
			return `[{"id":"item-1","ok":false,"score":1,"issues":[],"fix_suggestion":""}]`, nil
		default:
			return "", errors.New("network down")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("refine transport failure must not fail the batch: %v", err)
	}
	if res.Items[0].Content != "keep me" {
		t.Errorf("content = %q", res.Items[0].Content)
	}
}

func TestRun_OrphanedFeedbackIgnored(t *testing.T) {
	o, fake := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return `{"items":[{"content":"a"}]}`, nil
		case "critic-model":
			return `[{"id":"item-99","ok":false,"score":1,"issues":[],"fix_suggestion":""}]`, nil
		default:
			return `{"content":"should not happen"}`, nil
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items[0].Content != "a" {
		t.Errorf("item without matching feedback must pass through, got %q", res.Items[0].Content)
	}
	if fake.callCount("refine-model") != 0 {
		t.Error("orphaned feedback must not trigger refinement")
	}
}

func TestRun_GeneratorRawTextFallback(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return "Here are some loose thoughts instead of JSON", nil
		case "critic-model":
			return allGoodCritic("raw-1"), nil
		default:
			return "", errors.New("unexpected refine")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "raw-1" {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Items[0].Content != "Here are some loose thoughts instead of JSON" {
		t.Errorf("raw fallback content = %q", res.Items[0].Content)
	}
}

func TestRun_GeneratorSchemaFailureSalvagesItems(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			// charCount violates the schema, but the items array is salvageable.
			return `{"items":[{"content":"good one","charCount":-5,"tone":"viral"}]}`, nil
		case "critic-model":
			return allGoodCritic("item-1"), nil
		default:
			return "", errors.New("unexpected refine")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Items[0].ID != "item-1" || res.Items[0].Content != "good one" || res.Items[0].Tone != "viral" {
		t.Errorf("salvaged item = %+v", res.Items[0])
	}
}

func TestRun_GeneratorTransportErrorIsTerminal(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		return "", errors.New("upstream down")
	})
	if _, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet}); err == nil {
		t.Fatal("expected terminal error when the generator call fails")
	}
}

func TestRun_MissingTranscriptIsTerminal(t *testing.T) {
	o, fake := newTestOrchestrator(func(model, _ string) (string, error) {
		return "{}", nil
	})
	_, err := o.Run(context.Background(), Request{Format: content.FormatTweet})
	if !errors.Is(err, transcript.ErrMissing) {
		t.Fatalf("err = %v, want ErrMissing", err)
	}
	if len(fake.calls) != 0 {
		t.Error("no model call may happen before transcript resolution")
	}
}

func TestRun_FencedGeneratorOutput(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		switch model {
		case "gen-model":
			return "```json\n{\"items\":[{\"content\":\"fenced\"}]}\n```", nil
		case "critic-model":
			return allGoodCritic("item-1"), nil
		default:
			return "", errors.New("unexpected refine")
		}
	})

	res, err := o.Run(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Content != "fenced" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestGenerateOnce_LegacyTweets(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		return `{"tweets":["x","y"]}`, nil
	})

	res, err := o.GenerateOnce(context.Background(), Request{Transcript: "t", Format: content.FormatTweet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].ID != "tweet-1" || res.Items[1].ID != "tweet-2" {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Items[0].Content != "x" || res.Items[1].Content != "y" {
		t.Errorf("contents = %q, %q", res.Items[0].Content, res.Items[1].Content)
	}
	if res.PassMeta.Passes != 1 {
		t.Errorf("passes = %d, want 1", res.PassMeta.Passes)
	}
}

func TestGenerateOnce_RawFallback(t *testing.T) {
	o, _ := newTestOrchestrator(func(model, _ string) (string, error) {
		return "free-form response", nil
	})

	res, err := o.GenerateOnce(context.Background(), Request{Transcript: "t", Format: content.FormatLinkedIn})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "raw-1" || res.Items[0].Content != "free-form response" {
		t.Errorf("items = %+v", res.Items)
	}
}
