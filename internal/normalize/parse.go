package normalize

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/jobstack/resume-parser/internal/schema"
)

// ParseModelOutput decodes a model response into the normalized resume.
// Models occasionally wrap JSON in markdown fences or add prose around it
// despite instructions; we strip both before decoding, then sanitize
// section shape and validate against the schema.
func ParseModelOutput(output string) (*schema.Resume, json.RawMessage, error) {
	raw := extractJSON(output)
	if raw == "" {
		return nil, nil, errors.New("no JSON object in model output")
	}

	cleaned, _, err := schema.SanitizeSections([]byte(raw))
	if err != nil {
		return nil, nil, err
	}

	if err := schema.ValidateJSONAgainstSchema(schema.BuildResumeJSONSchema(), cleaned); err != nil {
		return nil, nil, err
	}

	var resume schema.Resume
	if err := json.Unmarshal(cleaned, &resume); err != nil {
		return nil, nil, errors.Wrap(err, "decode normalized resume")
	}
	return &resume, cleaned, nil
}

// extractJSON returns the outermost JSON object in s, tolerating markdown
// code fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
