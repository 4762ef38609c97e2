package normalize

import (
	"encoding/json"
	"strings"

	"github.com/jobstack/resume-parser/internal/schema"
)

// staticInstructions is the invariant part of every normalization prompt.
// Keeping it byte-stable matters: the provider-side prompt cache keys on it.
const staticInstructions = `You are an expert resume parser. Extract ONLY the content found in the resume text.
Do not invent data. Return a single JSON object matching the provided JSON Schema exactly.

Rules:
- personalInfo, summary, experience, education and skills must always be present, even when empty.
- Optional sections (projects, certifications, awards, languages, publications) must be
  OMITTED entirely when the resume has no such content. Never emit them as null or empty.
- Dates as "YYYY-MM" strings when a month is known, "YYYY" otherwise; omit unknown dates.
- skills.extracted is a flat deduplicated list of every skill mentioned anywhere.
- Set current=true and omit endDate for ongoing positions.
- Respond with JSON only, no prose and no code fences.`

// BuildPrompt assembles the full normalization prompt for rawText.
func BuildPrompt(rawText string) string {
	schemaJSON, _ := json.Marshal(schema.BuildResumeJSONSchema())

	var sb strings.Builder
	sb.WriteString(staticInstructions)
	sb.WriteString("\n\nJSON Schema:\n")
	sb.Write(schemaJSON)
	sb.WriteString("\n\nResume text:\n")
	sb.WriteString(rawText)
	return sb.String()
}

// BuildDynamicPrompt returns only the per-request part, for use when the
// static instructions are served from the provider-side cache.
func BuildDynamicPrompt(rawText string) string {
	return "Resume text:\n" + rawText
}

// StaticPrompt returns the cacheable instruction block (instructions + schema).
func StaticPrompt() string {
	schemaJSON, _ := json.Marshal(schema.BuildResumeJSONSchema())
	return staticInstructions + "\n\nJSON Schema:\n" + string(schemaJSON)
}
