package prompt

import (
	"fmt"
	"strings"

	"github.com/clipsmith/clipsmith/internal/content"
	"github.com/clipsmith/clipsmith/internal/sanitize"
)

// GeneratorPrompt is the first-pass prompt of the critique pipeline. It
// differs from the single-shot builders in that every item must carry a
// stable id the critic and refiner can key on.
func GeneratorPrompt(in Input) string {
	base := Build(in)
	return base + `
Additional requirement: every item MUST include a unique "id" field ("item-1", "item-2", ...). The ids are used to match critique feedback to items.
`
}

// CriticPrompt asks a (cheaper) model to score a batch of items keyed by
// id. itemsJSON is the serialized [{id, content}] batch.
func CriticPrompt(itemsJSON, transcript string) string {
	return fmt.Sprintf(`You are a strict content critic. Score each item below for quality as standalone social content derived from the transcript.

For each item judge:
- Hook strength: does the first line earn attention?
- Specificity: concrete claims over vague filler
- Faithfulness: consistent with the transcript
- Human cadence: no AI tells, no emojis, no em-dashes, no hashtags

Items:
%s

Return strict JSON: an array with exactly one entry per item, in this shape:
[
  {"id": "item-1", "ok": true, "score": 8, "issues": ["short specific problems"], "fix_suggestion": "one concrete rewrite direction"}
]

Scores are 0-10. Set "ok" to false when the item needs a rewrite. %s

Transcript:
%s
`, itemsJSON, outputContract, transcript)
}

// RefinerPrompt asks the refiner to rewrite a single flagged item using
// the critic's feedback. The response is a single item object; the id
// must be preserved.
func RefinerPrompt(item content.GeneratedItem, fb content.CriticFeedback, transcript, tone string) string {
	issues := "- none listed"
	if len(fb.Issues) > 0 {
		issues = "- " + strings.Join(fb.Issues, "\n- ")
	}
	return fmt.Sprintf(`You are rewriting one piece of social content that a critic flagged.

Original item (id %s):
%s

Critic issues:
%s

Fix suggestion: %s

%s

%sRewrite the item to resolve the issues while staying faithful to the transcript. Return strict JSON, a single object:
{"id": "%s", "content": "the rewritten content", "charCount": 123}

%s

Transcript:
%s
`,
		item.ID,
		item.Content,
		issues,
		sanitize.Sanitize(fb.FixSuggestion, sanitize.Options{}),
		humanConstraints,
		toneLine(tone),
		item.ID,
		outputContract,
		transcript,
	)
}

// AgentSystemPrompt frames the conversational agent that exposes the
// generation capabilities as tools.
const AgentSystemPrompt = `You are an expert content creation assistant. Your job is to help users create high-quality social media content, especially tweets and video scripts.

## Your Capabilities
1. Analyze Writing Style: analyze example posts to understand a user's preferred writing style.
2. Generate Tweets: create engaging tweets from transcripts or topics.
3. Generate Scripts: write video scripts matching a specific style on new topics.
4. Critique and Refine: review and improve generated content for maximum impact.

## Content Quality Standards
- NEVER use emojis
- NEVER use em-dashes
- NEVER use hashtags
- Write like a human, not an AI
- Use contractions naturally (don't, won't, it's)
- Vary sentence length for rhythm
- One idea per post
- Start with the insight, not setup

## Workflow
When a user wants to generate content:
1. If they provide example posts, first analyze the style with the analyze_style tool
2. Use the appropriate generation tool (generate_tweets or generate_script)
3. Optionally critique and refine the results for quality

## Communication Style
- Be concise and helpful
- Focus on delivering results, not explaining your process
- If you need more information, ask specific questions
- Present generated content clearly for easy copying

Always prioritize quality over quantity. Three excellent tweets beat ten mediocre ones.`

// ContextMessage renders the transcript (and optional style profile) as
// the agent's working context.
func ContextMessage(transcript string, style *content.StyleProfile) string {
	var b strings.Builder
	b.WriteString("Here is the transcript to work with:\n\n")
	b.WriteString(sanitize.Transcript(transcript))
	if style != nil {
		b.WriteString("\n\n")
		b.WriteString(StyleBlock(style))
	}
	return b.String()
}
