// Package worker consumes transcript events and runs the full critique
// pipeline on them without an HTTP request in the loop.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/events"
	"github.com/clipsmith/clipsmith/internal/pipeline"
)

// Saver is the slice of the store the worker needs.
type Saver interface {
	SaveGeneration(ctx context.Context, format content.Format, tone, purpose string, result content.GenerationResult) (uuid.UUID, error)
}

// Publisher is the slice of the events client the worker needs.
type Publisher interface {
	Publish(subject string, data any) error
}

// Worker turns stored transcripts into tweet batches. Store and
// publisher are optional; a nil value skips that side effect.
type Worker struct {
	pipeline *pipeline.Orchestrator
	store    Saver
	events   Publisher
	logger   *slog.Logger
}

func New(p *pipeline.Orchestrator, store Saver, ev Publisher, logger *slog.Logger) *Worker {
	return &Worker{pipeline: p, store: store, events: ev, logger: logger}
}

// HandleTranscriptStored is the NATS handler for
// clipsmith.transcript.stored. Failures are logged, never retried here;
// the transcript source can republish.
func (w *Worker) HandleTranscriptStored(subject string, data []byte) {
	ctx := context.Background()

	var evt events.TranscriptStoredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		w.logger.Error("failed to parse transcript event", "error", err)
		return
	}

	w.logger.Info("processing stored transcript", "transcript_id", evt.TranscriptID, "title", evt.Title)

	result, err := w.pipeline.Run(ctx, pipeline.Request{
		Transcript:    evt.Transcript,
		TranscriptURL: evt.TranscriptURL,
		Format:        content.FormatTweet,
	})
	if err != nil {
		w.logger.Error("generation failed", "transcript_id", evt.TranscriptID, "error", err)
		return
	}

	var generationID uuid.UUID
	if w.store != nil {
		generationID, err = w.store.SaveGeneration(ctx, content.FormatTweet, "", "", result)
		if err != nil {
			w.logger.Error("persist failed", "transcript_id", evt.TranscriptID, "error", err)
		}
	}

	if w.events != nil {
		if err := w.events.Publish(events.SubjectGenerationCompleted, events.GenerationCompletedEvent{
			GenerationID: generationID.String(),
			TranscriptID: evt.TranscriptID,
			Format:       string(content.FormatTweet),
			ItemCount:    len(result.Items),
			Passes:       result.PassMeta.Passes,
		}); err != nil {
			w.logger.Error("failed to publish completion", "transcript_id", evt.TranscriptID, "error", err)
		}
	}

	w.logger.Info("transcript processed", "transcript_id", evt.TranscriptID, "items", len(result.Items))
}
