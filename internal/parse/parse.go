// Package parse extracts structured items from free-form model output.
// Models are asked for bare JSON but routinely wrap it in code fences,
// return legacy shapes, or produce junk; everything here degrades to a
// smaller result set instead of failing.
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/clipsmith/clipsmith/internal/content"
)

// Shape discriminates the recognized model-output layouts.
type Shape int

const (
	// ShapeUnrecognized means no known layout matched.
	ShapeUnrecognized Shape = iota
	// ShapeItems is the modern {"items": [...]} layout.
	ShapeItems
	// ShapeThreads is the legacy {"threads": {...}} layout.
	ShapeThreads
	// ShapeTweets is the legacy {"tweets": [...]} layout.
	ShapeTweets
)

func (s Shape) String() string {
	switch s {
	case ShapeItems:
		return "items"
	case ShapeThreads:
		return "threads"
	case ShapeTweets:
		return "tweets"
	default:
		return "unrecognized"
	}
}

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFence removes a leading/trailing triple-backtick fence,
// optionally tagged json. Unfenced input is returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// Decode parses raw model text into a generic JSON object and classifies
// its shape. A parse failure or non-object payload yields
// ShapeUnrecognized with a nil map; Decode never returns an error.
func Decode(raw string) (map[string]json.RawMessage, Shape) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &obj); err != nil {
		return nil, ShapeUnrecognized
	}
	if _, ok := obj["items"]; ok {
		return obj, ShapeItems
	}
	if _, ok := obj["threads"]; ok {
		return obj, ShapeThreads
	}
	if _, ok := obj["tweets"]; ok {
		return obj, ShapeTweets
	}
	return obj, ShapeUnrecognized
}

// Normalize maps raw model text into a canonical item list for the given
// format. Recognition order: modern items, legacy threads (thread format
// only), legacy tweets (tweet format only). Anything else yields an empty
// list so the caller can fall back to wrapping the raw text.
func Normalize(raw string, format content.Format, tone string) []content.GeneratedItem {
	obj, shape := Decode(raw)
	switch shape {
	case ShapeItems:
		return normalizeItems(obj["items"], tone)
	case ShapeThreads:
		if format == content.FormatThread {
			return normalizeThreads(obj["threads"], tone)
		}
	case ShapeTweets:
		if format == content.FormatTweet {
			return normalizeTweets(obj["tweets"], tone)
		}
	}
	return nil
}

func normalizeItems(raw json.RawMessage, tone string) []content.GeneratedItem {
	var items []content.GeneratedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	for i := range items {
		if items[i].Tone == "" {
			items[i].Tone = tone
		}
	}
	return EnsureItemIDs(items)
}

// normalizeThreads accepts the legacy threads layout, where the value is
// either an array of part lists or a map of named part lists. Each entry
// becomes one item with its parts joined for content.
func normalizeThreads(raw json.RawMessage, tone string) []content.GeneratedItem {
	var lists [][]string
	if err := json.Unmarshal(raw, &lists); err != nil {
		var named map[string][]string
		if err := json.Unmarshal(raw, &named); err != nil {
			return nil
		}
		// Map order isn't stable; sort keys so ids are deterministic.
		keys := make([]string, 0, len(named))
		for k := range named {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lists = append(lists, named[k])
		}
	}

	items := make([]content.GeneratedItem, 0, len(lists))
	for i, parts := range lists {
		items = append(items, content.GeneratedItem{
			ID:      fmt.Sprintf("thread-%d", i+1),
			Content: strings.Join(parts, "\n"),
			Parts:   parts,
			Tone:    tone,
		})
	}
	return items
}

func normalizeTweets(raw json.RawMessage, tone string) []content.GeneratedItem {
	var tweets []string
	if err := json.Unmarshal(raw, &tweets); err != nil {
		return nil
	}
	items := make([]content.GeneratedItem, 0, len(tweets))
	for i, tw := range tweets {
		items = append(items, content.GeneratedItem{
			ID:      fmt.Sprintf("tweet-%d", i+1),
			Content: tw,
			Tone:    tone,
		})
	}
	return items
}

// EnsureItemIDs assigns item-{n} ids to items that lack one, keeping
// existing ids. Idempotent: re-application changes nothing.
func EnsureItemIDs(items []content.GeneratedItem) []content.GeneratedItem {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("item-%d", i+1)
		}
	}
	return items
}
