// Package prompt assembles model prompts for every content format, plus
// the generator/critic/refiner trio used by the critique pipeline and the
// style-analysis prompt. Builders are pure functions over sanitized
// inputs; the literal transcript is always appended last.
package prompt

import (
	"fmt"
	"strings"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/sanitize"
)

// Input carries everything a format builder may use.
type Input struct {
	Format          content.Format
	Transcript      string
	SegmentsPresent bool
	Tone            string
	Count           int
	Style           *content.StyleProfile
	Purpose         string
}

// humanConstraints is the shared non-negotiable style block embedded in
// every generation prompt.
const humanConstraints = `Non-negotiable writing rules:
- NEVER use emojis
- NEVER use em-dashes
- NEVER use hashtags (except LinkedIn, max 3 at the very end)
- Write like a human: use contractions naturally (don't, won't, it's)
- Vary sentence length for rhythm
- One idea per unit of content
- Start with the insight, not the setup
- Be specific and concrete; avoid fluff`

// outputContract instructs the model to answer with bare JSON. This is a
// textual instruction only; the parser still validates independently.
const outputContract = `Respond with ONLY a JSON object matching the documented shape. No markdown fences, no commentary. If you cannot comply, respond with {}.`

const timestampsAllowed = "You have timestamped segments; you may reference moments like [mm:ss] when it helps clarity."
const timestampsForbidden = "No timestamps available; avoid time references."

func timestampDirective(segmentsPresent bool) string {
	if segmentsPresent {
		return timestampsAllowed
	}
	return timestampsForbidden
}

func toneLine(tone string) string {
	if tone == "" {
		return ""
	}
	return fmt.Sprintf("Target tone: %s.\n", sanitize.Purpose(tone))
}

// StyleBlock renders a style-emulation section from an analyzed profile.
// Every field is sanitized before embedding.
func StyleBlock(style *content.StyleProfile) string {
	if style == nil {
		return ""
	}
	return fmt.Sprintf(`## Writing Style to Emulate
- Tone: %s
- Vocabulary: %s
- Sentence Structure: %s
- Hook Patterns: %s
- Key Patterns: %s
- Summary: %s
`,
		sanitize.Style(style.Tone),
		sanitize.Style(style.Vocabulary),
		sanitize.Style(style.SentenceStructure),
		sanitize.Style(style.Hooks),
		sanitize.Style(strings.Join(style.Patterns, ", ")),
		sanitize.Style(style.Summary),
	)
}

func purposeBlock(purpose string) string {
	if purpose == "" {
		return ""
	}
	return fmt.Sprintf("## Content Purpose\nThe content is being created for: %s\n", sanitize.Purpose(purpose))
}

const itemsShape = `{
  "items": [
    {"id": "item-1", "content": "string", "charCount": 123, "tone": "string", "parts": ["optional ordered sub-units"]}
  ]
}`

// Build dispatches to the format-specific builder. Unknown formats fall
// back to the tweet builder.
func Build(in Input) string {
	switch in.Format {
	case content.FormatThread:
		return BuildThreadPrompt(in)
	case content.FormatLinkedIn:
		return BuildLinkedInPrompt(in)
	case content.FormatShorts:
		return BuildShortsPrompt(in)
	case content.FormatScript:
		return BuildVideoScriptPrompt(in)
	default:
		return BuildTweetPrompt(in)
	}
}

// BuildTweetPrompt produces standalone tweets from a transcript.
func BuildTweetPrompt(in Input) string {
	count := in.Count
	if count <= 0 {
		count = content.DefaultBatchSizes[content.FormatTweet]
	}
	var b strings.Builder
	fmt.Fprintf(&b, `You are an expert social media writer turning a video transcript into standalone tweets.

%s

Generate %d distinct tweets:
- Each tweet under 280 characters
- Each stands alone; no thread numbering
- Pull the strongest specific insights from the transcript

%s

%s%s%s
Return strict JSON in this shape:
%s

%s

Transcript:
%s
`,
		timestampDirective(in.SegmentsPresent),
		count,
		humanConstraints,
		toneLine(in.Tone),
		StyleBlock(in.Style),
		purposeBlock(in.Purpose),
		itemsShape,
		outputContract,
		in.Transcript,
	)
	return b.String()
}

// BuildThreadPrompt produces hook-body-CTA Twitter threads.
func BuildThreadPrompt(in Input) string {
	count := in.Count
	if count <= 0 {
		count = content.DefaultBatchSizes[content.FormatThread]
	}
	var b strings.Builder
	fmt.Fprintf(&b, `You are turning a video transcript into Twitter threads.

%s

Generate %d threads:
- Each thread: 5-10 tweets, each under 280 characters
- Structure: a strong hook tweet, a body that delivers, a closing CTA
- Put the ordered tweets of each thread in "parts"; "content" is the joined thread
- Include 1-2 strong hooks per thread

%s

%s%s%s
Return strict JSON in this shape:
%s

%s

Transcript:
%s
`,
		timestampDirective(in.SegmentsPresent),
		count,
		humanConstraints,
		toneLine(in.Tone),
		StyleBlock(in.Style),
		purposeBlock(in.Purpose),
		itemsShape,
		outputContract,
		in.Transcript,
	)
	return b.String()
}

// BuildLinkedInPrompt produces LinkedIn posts.
func BuildLinkedInPrompt(in Input) string {
	count := in.Count
	if count <= 0 {
		count = content.DefaultBatchSizes[content.FormatLinkedIn]
	}
	var b strings.Builder
	fmt.Fprintf(&b, `You are turning a video transcript into LinkedIn posts.

%s

Generate %d posts:
- 150-300 words each
- Open with a one-line hook on its own line
- Short paragraphs, generous line breaks
- Close with a question or call to action
- Up to 3 relevant hashtags at the very end only

%s

%s%s%s
Return strict JSON in this shape:
%s

%s

Transcript:
%s
`,
		timestampDirective(in.SegmentsPresent),
		count,
		humanConstraints,
		toneLine(in.Tone),
		StyleBlock(in.Style),
		purposeBlock(in.Purpose),
		itemsShape,
		outputContract,
		in.Transcript,
	)
	return b.String()
}

// BuildShortsPrompt produces scripts for sub-60-second vertical video.
func BuildShortsPrompt(in Input) string {
	count := in.Count
	if count <= 0 {
		count = content.DefaultBatchSizes[content.FormatShorts]
	}
	var b strings.Builder
	fmt.Fprintf(&b, `You are turning a video transcript into scripts for short vertical videos (under 60 seconds when read aloud).

%s

Generate %d shorts scripts:
- Open with a 1-2 second spoken hook
- 100-150 words total per script
- Written to be spoken, not read
- End with a reason to follow or watch the full video

%s

%s%s%s
Return strict JSON in this shape:
%s

%s

Transcript:
%s
`,
		timestampDirective(in.SegmentsPresent),
		count,
		humanConstraints,
		toneLine(in.Tone),
		StyleBlock(in.Style),
		purposeBlock(in.Purpose),
		itemsShape,
		outputContract,
		in.Transcript,
	)
	return b.String()
}

// BuildVideoScriptPrompt produces a full-length video script from the
// transcript's material.
func BuildVideoScriptPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are turning a video transcript into a polished video script.

%s

Generate 1 full script:
- Structure: cold-open hook, titled sections, a closing CTA
- Keep the source's strongest arguments and examples
- Written to be spoken, with natural pacing cues

%s

%s%s%s
Return strict JSON in this shape:
%s

%s

Transcript:
%s
`,
		timestampDirective(in.SegmentsPresent),
		humanConstraints,
		toneLine(in.Tone),
		StyleBlock(in.Style),
		purposeBlock(in.Purpose),
		itemsShape,
		outputContract,
		in.Transcript,
	)
	return b.String()
}

// ScriptPrompt asks for a wholly new script on a target topic, using the
// reference transcript only as a voice/style reference.
func ScriptPrompt(referenceTranscript, topic string, style *content.StyleProfile, purpose string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a scriptwriter. Study the reference transcript below for its voice: sentence rhythm, vocabulary, how it opens, how it lands points. Then write a COMPLETELY NEW script about the target topic in that same voice. Do not reuse the reference's content.

Target topic: %s

%s

%s%s
Return strict JSON in this shape:
{"script": "the full script text", "styleNotes": "one or two sentences on how the voice was matched"}

%s

Reference transcript (style only, not content):
%s
`,
		sanitize.Purpose(topic),
		humanConstraints,
		StyleBlock(style),
		purposeBlock(purpose),
		outputContract,
		referenceTranscript,
	)
	return b.String()
}

// StyleAnalysisPrompt asks the model to distill a style profile from
// example posts. Examples must already be sanitized by the caller.
func StyleAnalysisPrompt(examples []string) string {
	var b strings.Builder
	b.WriteString(`Analyze the writing style of the example posts below. Focus on what makes the voice distinctive, not on the subjects discussed.

Examples:
`)
	for i, ex := range examples {
		fmt.Fprintf(&b, "%d. %s\n", i+1, ex)
	}
	b.WriteString(`
Return strict JSON in this shape:
{
  "tone": "overall emotional register",
  "vocabulary": "word choice habits",
  "sentenceStructure": "sentence length and rhythm habits",
  "hooks": "how posts open",
  "patterns": ["recurring structural habits"],
  "summary": "two-sentence summary of the voice"
}

`)
	b.WriteString(outputContract)
	b.WriteString("\n")
	return b.String()
}
