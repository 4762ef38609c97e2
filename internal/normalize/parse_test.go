package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalModelOutput = `{
	"personalInfo": {"fullName": "Ada Lovelace", "email": "ada@example.com"},
	"summary": {"content": "Engineer and analyst."},
	"experience": [],
	"education": [],
	"skills": {"extracted": ["Go", "SQL"]}
}`

func TestParseModelOutputPlainJSON(t *testing.T) {
	resume, raw, err := ParseModelOutput(minimalModelOutput)
	require.NoError(t, err)
	require.NotNil(t, resume)
	assert.Equal(t, "Ada Lovelace", resume.PersonalInfo.FullName)
	assert.Equal(t, []string{"Go", "SQL"}, resume.Skills.Extracted)
	assert.NotEmpty(t, raw)
}

func TestParseModelOutputStripsCodeFence(t *testing.T) {
	fenced := "Here is the extracted resume:\n```json\n" + minimalModelOutput + "\n```\nLet me know if you need anything else."
	resume, _, err := ParseModelOutput(fenced)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", resume.PersonalInfo.Email)
}

func TestParseModelOutputFillsMissingCoreSections(t *testing.T) {
	resume, _, err := ParseModelOutput(`{"personalInfo": {"fullName": "Ada Lovelace", "email": "ada@example.com"}}`)
	require.NoError(t, err)
	assert.NotNil(t, resume.Experience)
	assert.NotNil(t, resume.Skills.Extracted)
}

func TestParseModelOutputNoJSON(t *testing.T) {
	_, _, err := ParseModelOutput("I could not extract any structured data from this document.")
	require.Error(t, err)
}

func TestBuildFallbackExtractsContacts(t *testing.T) {
	text := "Ada Lovelace\nSoftware Engineer\nada@example.com | +1 415 555 0100\nlinkedin.com/in/ada-lovelace\ngithub.com/adal"

	r := BuildFallback(text)
	assert.Equal(t, "Ada Lovelace", r.PersonalInfo.FullName)
	assert.Equal(t, "ada@example.com", r.PersonalInfo.Email)
	assert.NotEmpty(t, r.PersonalInfo.Phone)
	assert.Equal(t, "linkedin.com/in/ada-lovelace", r.PersonalInfo.LinkedIn)
	assert.Equal(t, "github.com/adal", r.PersonalInfo.GitHub)
}

func TestBuildFallbackTruncatesSummary(t *testing.T) {
	text := strings.Repeat("x", 2000)
	r := BuildFallback(text)
	assert.Len(t, r.Summary.Content, 500)
}

func TestBuildFallbackTruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes that do not divide 500 evenly, so a byte-offset cut
	// would land mid-rune.
	text := strings.Repeat("日", 400)
	r := BuildFallback(text)

	assert.True(t, utf8.ValidString(r.Summary.Content))
	assert.LessOrEqual(t, len(r.Summary.Content), 500)
	assert.NotEmpty(t, r.Summary.Content)
}

func TestBuildFallbackEmptyInput(t *testing.T) {
	r := BuildFallback("")
	require.NotNil(t, r)
	assert.Empty(t, r.Summary.Content)
	assert.Empty(t, r.DetectedSections())
}

func TestCalculateCostCachedDiscount(t *testing.T) {
	usage := TokenUsage{Input: 1_000_000, Output: 100_000, Total: 1_100_000}
	full := CalculateCost(usage, false)
	cached := CalculateCost(usage, true)
	assert.Greater(t, full, cached)
	assert.InDelta(t, 0.25+0.075, full, 1e-9)
}

func TestEstimateCostScalesWithLength(t *testing.T) {
	small := EstimateCost(1_000)
	large := EstimateCost(100_000)
	assert.Greater(t, large, small)
	assert.Greater(t, small, 0.0)
}
