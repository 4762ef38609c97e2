package schema

// BuildResumeJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the normalizer as a structured output constraint
// and also use it locally to validate model output.
func BuildResumeJSONSchema() map[string]any {
	str := func() map[string]any { return map[string]any{"type": "string"} }
	strArr := func() map[string]any {
		return map[string]any{"type": "array", "items": str()}
	}

	personalInfo := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fullName":  str(),
			"title":     str(),
			"email":     str(),
			"phone":     str(),
			"location":  str(),
			"linkedIn":  str(),
			"portfolio": str(),
			"github":    str(),
			"customLinks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label": str(),
						"url":   str(),
					},
				},
			},
		},
		"required": []string{"fullName", "email"},
	}

	experienceItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"company":      str(),
			"position":     str(),
			"location":     str(),
			"startDate":    str(),
			"endDate":      str(),
			"current":      map[string]any{"type": "boolean"},
			"description":  str(),
			"achievements": strArr(),
			"technologies": strArr(),
		},
		"required": []string{"company", "position"},
	}

	educationItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"institution": str(),
			"degree":      str(),
			"field":       str(),
			"location":    str(),
			"startDate":   str(),
			"endDate":     str(),
			"current":     map[string]any{"type": "boolean"},
			"gpa":         str(),
		},
		"required": []string{"institution", "degree"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"personalInfo": personalInfo,
			"summary": map[string]any{
				"type":       "object",
				"properties": map[string]any{"content": str()},
				"required":   []string{"content"},
			},
			"experience": map[string]any{"type": "array", "items": experienceItem},
			"education":  map[string]any{"type": "array", "items": educationItem},
			"skills": map[string]any{
				"type":       "object",
				"properties": map[string]any{"extracted": strArr()},
				"required":   []string{"extracted"},
			},
			"projects":       map[string]any{"type": "array"},
			"certifications": map[string]any{"type": "array"},
			"awards":         map[string]any{"type": "array"},
			"languages":      map[string]any{"type": "array"},
			"publications":   map[string]any{"type": "array"},
		},
		"required": []string{"personalInfo", "summary", "experience", "education", "skills"},
	}
}
