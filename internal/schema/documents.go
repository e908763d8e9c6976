package schema

// Embedded schema documents. Model-output schemas are deliberately
// permissive about extras (models add fields freely); request schemas
// reject unknown enum values and out-of-range counts at the boundary.

const generatedItemDoc = `{
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "content": {"type": "string"},
    "charCount": {"type": "integer", "minimum": 0},
    "tone": {"type": ["string", "null"]},
    "parts": {"type": ["array", "null"], "items": {"type": "string"}},
    "metadata": {"type": "object"}
  },
  "required": ["content"]
}`

const generationResultDoc = `{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": ` + generatedItemDoc + `
    },
    "pass_meta": {
      "type": "object",
      "properties": {
        "generator_model": {"type": "string"},
        "critic_model": {"type": "string"},
        "passes": {"type": "number"},
        "timestamp": {"type": "string"}
      },
      "required": ["generator_model", "passes", "timestamp"]
    }
  },
  "required": ["items"]
}`

const criticFeedbackDoc = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "id": {"type": "string"},
      "ok": {"type": "boolean"},
      "score": {"type": "number", "minimum": 0, "maximum": 10},
      "issues": {"type": "array", "items": {"type": "string"}},
      "fix_suggestion": {"type": "string"}
    },
    "required": ["id", "ok", "score"]
  }
}`

const styleProfileDoc = `{
  "type": "object",
  "properties": {
    "tone": {"type": "string"},
    "vocabulary": {"type": "string"},
    "sentenceStructure": {"type": "string"},
    "hooks": {"type": "string"},
    "patterns": {"type": "array", "items": {"type": "string"}},
    "summary": {"type": "string"}
  },
  "required": ["tone", "vocabulary", "sentenceStructure", "hooks", "patterns", "summary"]
}`

const segmentDoc = `{
  "type": "object",
  "properties": {
    "start": {"type": "number"},
    "end": {"type": "number"},
    "text": {"type": "string"},
    "words": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "start": {"type": "number"},
          "end": {"type": "number"},
          "text": {"type": "string"}
        },
        "required": ["start", "end", "text"]
      }
    }
  },
  "required": ["start", "end", "text"]
}`

const generateRequestDoc = `{
  "type": "object",
  "properties": {
    "transcript": {"type": "string"},
    "transcriptUrl": {"type": "string", "format": "uri"},
    "segments": {"type": "array", "items": ` + segmentDoc + `},
    "format": {"type": "string", "enum": ["tweet", "thread", "linkedin", "shorts", "script"]},
    "tone": {"type": "string", "enum": ["professional", "casual", "viral", "educational", "provocative"]},
    "count": {"type": "integer", "minimum": 1, "maximum": 20},
    "purpose": {"type": "string"},
    "style": ` + styleProfileDoc + `
  },
  "required": ["format"],
  "anyOf": [
    {"required": ["transcript"]},
    {"required": ["transcriptUrl"]}
  ]
}`

const styleRequestDoc = `{
  "type": "object",
  "properties": {
    "examples": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1,
      "maxItems": 15
    }
  },
  "required": ["examples"]
}`

const agentRequestDoc = `{
  "type": "object",
  "properties": {
    "messages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "role": {"type": "string", "enum": ["user", "assistant"]},
          "content": {"type": "string"}
        },
        "required": ["role", "content"]
      }
    },
    "context": {"type": "string"},
    "purpose": {"type": "string"},
    "style": ` + styleProfileDoc + `
  },
  "required": ["messages"]
}`

// Compiled schemas, ready for Validate.
var (
	GeneratedItem    = mustCompile(generatedItemDoc)
	GenerationResult = mustCompile(generationResultDoc)
	CriticFeedback   = mustCompile(criticFeedbackDoc)
	StyleProfile     = mustCompile(styleProfileDoc)
	GenerateRequest  = mustCompile(generateRequestDoc)
	StyleRequest     = mustCompile(styleRequestDoc)
	AgentRequest     = mustCompile(agentRequestDoc)
)
