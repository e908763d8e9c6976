// Package content defines the shared data model for generated social
// content: formats, tones, items, critic feedback, style profiles, and
// the transcript shapes produced by the transcription backend.
package content

// Format is a supported output format.
type Format string

const (
	FormatTweet    Format = "tweet"
	FormatThread   Format = "thread"
	FormatLinkedIn Format = "linkedin"
	FormatShorts   Format = "shorts"
	FormatScript   Format = "script"
)

// Formats lists every supported format.
var Formats = []Format{FormatTweet, FormatThread, FormatLinkedIn, FormatShorts, FormatScript}

// ValidFormat reports whether f is one of the supported formats.
func ValidFormat(f Format) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Tone is a supported content tone.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneCasual       Tone = "casual"
	ToneViral        Tone = "viral"
	ToneEducational  Tone = "educational"
	ToneProvocative  Tone = "provocative"
)

// FormatLabels maps formats to display labels.
var FormatLabels = map[Format]string{
	FormatTweet:    "Tweet",
	FormatThread:   "Thread",
	FormatLinkedIn: "LinkedIn Post",
	FormatShorts:   "Shorts Script",
	FormatScript:   "Video Script",
}

// CharLimits holds per-unit character ceilings where a format has one.
// Threads are limited per tweet, not per thread.
var CharLimits = map[Format]int{
	FormatTweet:  280,
	FormatThread: 280,
}

// DefaultBatchSizes is the default item count per format when the caller
// doesn't specify one.
var DefaultBatchSizes = map[Format]int{
	FormatTweet:    6,
	FormatThread:   4,
	FormatLinkedIn: 3,
	FormatShorts:   3,
	FormatScript:   1,
}

// MaxBatchSize caps the number of items a single request may ask for.
const MaxBatchSize = 20

// Word is a single timestamped word within a segment.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Segment is a time-bounded chunk of transcript text. Start and End are
// seconds; segments arrive ordered by Start non-decreasing.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is the read-only output of the transcription backend.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
}

// StyleProfile describes a target writing voice, produced by the style
// analyzer from example posts.
type StyleProfile struct {
	Tone              string   `json:"tone"`
	Vocabulary        string   `json:"vocabulary"`
	SentenceStructure string   `json:"sentenceStructure"`
	Hooks             string   `json:"hooks"`
	Patterns          []string `json:"patterns"`
	Summary           string   `json:"summary"`
}

// GeneratedItem is one unit of generated content. If Parts is present it
// is the authoritative rendering and Content is the joined form.
type GeneratedItem struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Parts     []string       `json:"parts,omitempty"`
	CharCount int            `json:"charCount,omitempty"`
	Tone      string         `json:"tone,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CriticFeedback is the critic's verdict on a single item, matched to the
// item by ID.
type CriticFeedback struct {
	ID            string   `json:"id"`
	OK            bool     `json:"ok"`
	Score         float64  `json:"score"`
	Issues        []string `json:"issues"`
	FixSuggestion string   `json:"fix_suggestion"`

	// Heuristic marks feedback synthesized when the critic's output was
	// unusable. It carries no quality signal and never triggers
	// refinement.
	Heuristic bool `json:"heuristic,omitempty"`
}

// RefineThreshold is the critic score below which an item is refined.
// An item needs refinement when !OK or Score < RefineThreshold; both
// triggers are independent.
const RefineThreshold = 7.0

// NeedsRefinement reports whether fb flags its item for the refiner pass.
func (fb CriticFeedback) NeedsRefinement() bool {
	return !fb.OK || fb.Score < RefineThreshold
}

// PassMeta records the provenance of a finished batch.
type PassMeta struct {
	GeneratorModel string `json:"generator_model"`
	CriticModel    string `json:"critic_model,omitempty"`
	Passes         int    `json:"passes"`
	Timestamp      string `json:"timestamp"`
}

// GenerationResult is the terminal artifact of one orchestration run.
type GenerationResult struct {
	Items    []GeneratedItem `json:"items"`
	PassMeta PassMeta        `json:"pass_meta"`
}
