package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jobstack/resume-parser/internal/schema"
)

var (
	reEmail    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	rePhone    = regexp.MustCompile(`[+]?[0-9][0-9 ()-]{6,14}[0-9]`)
	reLinkedIn = regexp.MustCompile(`(?i)linkedin\.com/in/[\w-]+`)
	reGitHub   = regexp.MustCompile(`(?i)github\.com/[\w-]+`)
	reNameLine = regexp.MustCompile(`^[A-Za-z .'-]+$`)
)

// BuildFallback produces a schema-valid resume from raw text using cheap
// regex extraction. Used when the model output is unusable: the caller flags
// the result as degraded rather than failing the request.
func BuildFallback(rawText string) *schema.Resume {
	r := schema.Empty()

	if m := reEmail.FindString(rawText); m != "" {
		r.PersonalInfo.Email = m
	}
	if m := rePhone.FindString(rawText); m != "" {
		r.PersonalInfo.Phone = strings.TrimSpace(m)
	}
	if m := reLinkedIn.FindString(rawText); m != "" {
		r.PersonalInfo.LinkedIn = m
	}
	if m := reGitHub.FindString(rawText); m != "" {
		r.PersonalInfo.GitHub = m
	}

	// Name heuristic: first short plausible line.
	for _, line := range strings.SplitN(rawText, "\n", 6) {
		line = strings.TrimSpace(line)
		if len(line) > 2 && len(line) < 50 && strings.Contains(line, " ") && reNameLine.MatchString(line) {
			r.PersonalInfo.FullName = line
			break
		}
	}

	if rawText != "" {
		content := rawText
		if len(content) > 500 {
			cut := 500
			// Never split a multi-byte rune.
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		r.Summary.Content = content
	}

	return r
}
