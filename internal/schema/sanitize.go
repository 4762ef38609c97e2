package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// optionalSections are omitted entirely when empty. Core sections stay even
// when empty so the output shape is stable.
var optionalSections = []string{"projects", "certifications", "awards", "languages", "publications"}

var coreSections = []string{"personalInfo", "summary", "experience", "education", "skills"}

// SanitizeSections normalizes a model-produced resume document so it can
// validate: null or empty optional sections are dropped, missing core
// sections are filled with their canonical empty values. Only section-level
// shape is touched, never field content. Returns the cleaned document and
// the names of sections that were dropped or filled.
func SanitizeSections(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, errors.Wrap(err, "decode resume document")
	}

	var touched []string

	for _, k := range optionalSections {
		v, ok := m[k]
		if !ok {
			continue
		}
		if v == nil || emptyCollection(v) {
			delete(m, k)
			touched = append(touched, k)
		}
	}

	empty := Empty()
	defaults := map[string]any{
		"personalInfo": empty.PersonalInfo,
		"summary":      empty.Summary,
		"experience":   empty.Experience,
		"education":    empty.Education,
		"skills":       empty.Skills,
	}
	for _, k := range coreSections {
		if v, ok := m[k]; !ok || v == nil {
			m[k] = defaults[k]
			touched = append(touched, k)
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode resume document")
	}
	return b, touched, nil
}

func emptyCollection(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case string:
		return t == ""
	default:
		return false
	}
}
