package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeDropsEmptyOptionalSections(t *testing.T) {
	doc := []byte(`{
		"personalInfo": {"fullName": "Ada Lovelace", "email": "ada@example.com"},
		"summary": {"content": "Engineer."},
		"experience": [],
		"education": [],
		"skills": {"extracted": ["Go"]},
		"projects": [],
		"awards": null,
		"languages": [{"language": "English"}]
	}`)

	cleaned, touched, err := SanitizeSections(doc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(cleaned, &m))
	assert.NotContains(t, m, "projects")
	assert.NotContains(t, m, "awards")
	assert.Contains(t, m, "languages")
	assert.ElementsMatch(t, []string{"projects", "awards"}, touched)
}

func TestSanitizeFillsMissingCoreSections(t *testing.T) {
	doc := []byte(`{"personalInfo": {"fullName": "Ada Lovelace", "email": "ada@example.com"}}`)

	cleaned, touched, err := SanitizeSections(doc)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(cleaned, &m))
	for _, core := range []string{"personalInfo", "summary", "experience", "education", "skills"} {
		assert.Contains(t, m, core)
	}
	assert.ElementsMatch(t, []string{"summary", "experience", "education", "skills"}, touched)

	// Filled document must pass schema validation.
	require.NoError(t, ValidateJSONAgainstSchema(BuildResumeJSONSchema(), cleaned))
}

func TestSanitizeRejectsNonObject(t *testing.T) {
	_, _, err := SanitizeSections([]byte(`[1,2,3]`))
	require.Error(t, err)
}

func TestEmptyResumeValidates(t *testing.T) {
	b, err := json.Marshal(Empty())
	require.NoError(t, err)
	require.NoError(t, ValidateJSONAgainstSchema(BuildResumeJSONSchema(), b))
}

func TestEmptyMarshalsCoreSectionsAlways(t *testing.T) {
	b, err := json.Marshal(Empty())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, core := range []string{"personalInfo", "summary", "experience", "education", "skills"} {
		assert.Contains(t, m, core)
	}
	for _, opt := range []string{"projects", "certifications", "awards", "languages", "publications"} {
		assert.NotContains(t, m, opt)
	}
}

func TestDetectedSections(t *testing.T) {
	r := Empty()
	assert.Empty(t, r.DetectedSections())

	r.PersonalInfo.Email = "ada@example.com"
	r.Summary.Content = "Engineer."
	r.Skills.Extracted = []string{"Go"}
	assert.ElementsMatch(t, []string{"personalInfo", "summary", "skills"}, r.DetectedSections())
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	doc := []byte(`{
		"personalInfo": {"fullName": "Ada Lovelace", "email": "a@b.co"},
		"summary": {"content": ""},
		"experience": [{"company": "ACME"}],
		"education": [],
		"skills": {"extracted": []}
	}`)
	err := ValidateJSONAgainstSchema(BuildResumeJSONSchema(), doc)
	require.Error(t, err)
}
