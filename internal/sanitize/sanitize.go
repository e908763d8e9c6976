// Package sanitize cleans free-text user input before it is embedded in a
// model prompt. It strips prompt-injection patterns, normalizes
// whitespace, escapes characters that would break a structured text block,
// and enforces length ceilings. Every function is total: bad input
// degrades to an empty string, never an error.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// FilteredToken replaces matched injection patterns. A literal placeholder
// keeps the surrounding sentence readable when inspecting prompts.
const FilteredToken = "[filtered]"

// Default length ceilings per field kind.
const (
	DefaultMaxLength    = 2000
	ExampleMaxLength    = 500
	TranscriptMaxLength = 50000
	StyleMaxLength      = 1000
	PurposeMaxLength    = 500
	DefaultMaxItems     = 20
)

// injectionPatterns matches known prompt-injection attempts: instruction
// overrides, role impersonation, system delimiter markers, and output
// manipulation probes.
var injectionPatterns = []*regexp.Regexp{
	// Direct instruction override attempts
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|above|prior|earlier)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|above|prior|earlier)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|above|prior|earlier)`),

	// Role/identity manipulation
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
	regexp.MustCompile(`(?i)act\s+as\s+(if\s+you\s+are|a)`),
	regexp.MustCompile(`(?i)from\s+now\s+on`),

	// System prompt markers
	regexp.MustCompile(`(?i)\[?\s*system\s*[:\]]`),
	regexp.MustCompile(`(?i)\[?\s*assistant\s*[:\]]`),
	regexp.MustCompile(`(?i)\[?\s*user\s*[:\]]`),
	regexp.MustCompile(`(?i)<<\s*SYS\s*>>`),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`(?i)\[/INST\]`),

	// Instruction injection
	regexp.MustCompile(`(?i)new\s+instructions?\s*:`),
	regexp.MustCompile(`(?i)override\s*:`),
	regexp.MustCompile(`(?i)admin\s+mode`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)DAN\s+mode`),

	// Output manipulation
	regexp.MustCompile(`(?i)print\s+the\s+(system\s+)?prompt`),
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+)?instructions`),
	regexp.MustCompile(`(?i)show\s+(your\s+)?hidden`),

	// Delimiter exploitation
	regexp.MustCompile("(?i)```\\s*system"),
	regexp.MustCompile(`(?i)\{\{\s*system`),
	regexp.MustCompile(`(?i)<\|im_start\|>`),
	regexp.MustCompile(`(?i)<\|im_end\|>`),
}

// specialChars escapes characters that would break embedding inside a
// quoted prompt block. Order matters: backslash first.
var specialChars = []struct{ from, to string }{
	{`\`, `\\`},
	{`"`, `\"`},
	{"\n", " "},
	{"\r", ""},
	{"\t", " "},
}

// multilineSpecialChars is the escape set when newlines are preserved,
// e.g. for full transcript bodies where line structure matters.
var multilineSpecialChars = []struct{ from, to string }{
	{`\`, `\\`},
	{`"`, `\"`},
	{"\r", ""},
	{"\t", " "},
}

var whitespaceRun = regexp.MustCompile(`\s+`)
var newlineRun = regexp.MustCompile(`[\r\n]+`)
var horizontalRun = regexp.MustCompile(`[ \t]+`)

// Options controls a single Sanitize call. A zero MaxLength means
// DefaultMaxLength; a negative MaxLength truncates to nothing.
type Options struct {
	MaxLength        int
	PreserveNewlines bool
}

// ArrayOptions controls SanitizeArray. Zero values mean ExampleMaxLength
// and DefaultMaxItems.
type ArrayOptions struct {
	MaxLength int
	MaxItems  int
}

// ContainsInjection reports whether input matches any injection pattern.
func ContainsInjection(input string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}

// StripInjectionPatterns replaces every injection-pattern match with
// FilteredToken.
func StripInjectionPatterns(input string) string {
	out := input
	for _, p := range injectionPatterns {
		out = p.ReplaceAllString(out, FilteredToken)
	}
	return out
}

// EscapeSpecialChars escapes characters that would break a quoted block.
func EscapeSpecialChars(input string) string {
	out := input
	for _, sc := range specialChars {
		out = strings.ReplaceAll(out, sc.from, sc.to)
	}
	return out
}

// NormalizeWhitespace collapses whitespace runs to single spaces and trims.
func NormalizeWhitespace(input string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(input, " "))
}

// Sanitize cleans input for safe embedding in a prompt. Pattern
// stripping, whitespace handling, escaping, then truncation, in that
// order, so the length ceiling always holds on the result.
func Sanitize(input string, opts Options) string {
	if input == "" {
		return ""
	}
	maxLen := opts.MaxLength
	if maxLen == 0 {
		maxLen = DefaultMaxLength
	}
	if maxLen < 0 {
		maxLen = 0
	}

	out := StripInjectionPatterns(input)

	if opts.PreserveNewlines {
		out = strings.TrimSpace(horizontalRun.ReplaceAllString(out, " "))
		for _, sc := range multilineSpecialChars {
			out = strings.ReplaceAll(out, sc.from, sc.to)
		}
	} else {
		out = newlineRun.ReplaceAllString(out, " ")
		out = NormalizeWhitespace(out)
		out = EscapeSpecialChars(out)
	}

	if len(out) > maxLen {
		out = out[:maxLen]
		// Back off to a rune boundary so truncation never emits invalid UTF-8.
		for len(out) > 0 && !utf8.RuneStart(out[len(out)-1]) {
			out = out[:len(out)-1]
		}
	}
	return out
}

// SanitizeArray sanitizes each element, drops empties, and caps the count.
func SanitizeArray(inputs []string, opts ArrayOptions) []string {
	maxLen := opts.MaxLength
	if maxLen == 0 {
		maxLen = ExampleMaxLength
	}
	maxItems := opts.MaxItems
	if maxItems == 0 {
		maxItems = DefaultMaxItems
	}
	if len(inputs) > maxItems {
		inputs = inputs[:maxItems]
	}
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if s := Sanitize(in, Options{MaxLength: maxLen}); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Transcript sanitizes a full transcript body, keeping line structure.
func Transcript(input string) string {
	return Sanitize(input, Options{MaxLength: TranscriptMaxLength, PreserveNewlines: true})
}

// Style sanitizes a free-text style description.
func Style(input string) string {
	return Sanitize(input, Options{MaxLength: StyleMaxLength, PreserveNewlines: true})
}

// Purpose sanitizes a purpose or topic line.
func Purpose(input string) string {
	return Sanitize(input, Options{MaxLength: PurposeMaxLength})
}
