// Package schema defines the fixed normalized resume shape every provider
// result is coerced into, plus its validation and sanitation helpers.
//
// Contract: core sections (personalInfo, summary, experience, education,
// skills) are always present even when empty; optional sections are omitted
// entirely when they carry no content, never emitted as null placeholders.
package schema

// PersonalInfo is contact and identity data. Core section.
type PersonalInfo struct {
	FullName    string       `json:"fullName"`
	Title       string       `json:"title"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	Location    string       `json:"location"`
	LinkedIn    string       `json:"linkedIn"`
	Portfolio   string       `json:"portfolio"`
	GitHub      string       `json:"github"`
	CustomLinks []CustomLink `json:"customLinks"`
}

type CustomLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Summary is the professional summary. Core section.
type Summary struct {
	Content string `json:"content"`
}

type Experience struct {
	Company        string   `json:"company"`
	Position       string   `json:"position"`
	Location       string   `json:"location,omitempty"`
	StartDate      string   `json:"startDate,omitempty"`
	EndDate        string   `json:"endDate,omitempty"`
	Current        bool     `json:"current"`
	Description    string   `json:"description,omitempty"`
	Achievements   []string `json:"achievements,omitempty"`
	Technologies   []string `json:"technologies,omitempty"`
	EmploymentType string   `json:"employmentType,omitempty"`
	Remote         bool     `json:"remote,omitempty"`
}

type Education struct {
	Institution  string   `json:"institution"`
	Degree       string   `json:"degree"`
	Field        string   `json:"field,omitempty"`
	Location     string   `json:"location,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
	Current      bool     `json:"current"`
	GPA          string   `json:"gpa,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
	Courses      []string `json:"courses,omitempty"`
	Honors       []string `json:"honors,omitempty"`
}

// Skills is a flat extracted list. Core section.
type Skills struct {
	Extracted []string `json:"extracted"`
}

type Project struct {
	Title        string   `json:"title"`
	Role         string   `json:"role,omitempty"`
	Type         string   `json:"type,omitempty"`
	Client       string   `json:"client,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
	Current      bool     `json:"current,omitempty"`
	URL          string   `json:"url,omitempty"`
	GitHub       string   `json:"github,omitempty"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
}

type Certification struct {
	Name         string   `json:"name"`
	Issuer       string   `json:"issuer,omitempty"`
	IssueDate    string   `json:"issueDate,omitempty"`
	ExpiryDate   string   `json:"expiryDate,omitempty"`
	CredentialID string   `json:"credentialId,omitempty"`
	URL          string   `json:"url,omitempty"`
	Skills       []string `json:"skills,omitempty"`
}

type Award struct {
	Title       string `json:"title"`
	Issuer      string `json:"issuer,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

type Language struct {
	Language      string `json:"language"`
	Proficiency   string `json:"proficiency,omitempty"`
	Certification string `json:"certification,omitempty"`
}

type Publication struct {
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	Date        string   `json:"date,omitempty"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Resume is the normalized content payload. Core sections use value types so
// they marshal even when empty; optional sections are slices with omitempty.
type Resume struct {
	PersonalInfo PersonalInfo `json:"personalInfo"`
	Summary      Summary      `json:"summary"`
	Experience   []Experience `json:"experience"`
	Education    []Education  `json:"education"`
	Skills       Skills       `json:"skills"`

	Projects       []Project       `json:"projects,omitempty"`
	Certifications []Certification `json:"certifications,omitempty"`
	Awards         []Award         `json:"awards,omitempty"`
	Languages      []Language      `json:"languages,omitempty"`
	Publications   []Publication   `json:"publications,omitempty"`
}

// Empty returns the canonical empty-but-valid resume. Both the degraded
// normalization path and the error response path use this exact shape, so
// callers always see the same structure.
func Empty() *Resume {
	return &Resume{
		PersonalInfo: PersonalInfo{CustomLinks: []CustomLink{}},
		Summary:      Summary{},
		Experience:   []Experience{},
		Education:    []Education{},
		Skills:       Skills{Extracted: []string{}},
	}
}

// DetectedSections lists the section names that carry content.
func (r *Resume) DetectedSections() []string {
	var out []string
	if r.PersonalInfo.FullName != "" || r.PersonalInfo.Email != "" {
		out = append(out, "personalInfo")
	}
	if r.Summary.Content != "" {
		out = append(out, "summary")
	}
	if len(r.Experience) > 0 {
		out = append(out, "experience")
	}
	if len(r.Education) > 0 {
		out = append(out, "education")
	}
	if len(r.Skills.Extracted) > 0 {
		out = append(out, "skills")
	}
	if len(r.Projects) > 0 {
		out = append(out, "projects")
	}
	if len(r.Certifications) > 0 {
		out = append(out, "certifications")
	}
	if len(r.Awards) > 0 {
		out = append(out, "awards")
	}
	if len(r.Languages) > 0 {
		out = append(out, "languages")
	}
	if len(r.Publications) > 0 {
		out = append(out, "publications")
	}
	return out
}

// MissingSections lists core sections with no content.
func (r *Resume) MissingSections() []string {
	var out []string
	if len(r.Experience) == 0 {
		out = append(out, "experience")
	}
	if len(r.Education) == 0 {
		out = append(out, "education")
	}
	if len(r.Skills.Extracted) == 0 {
		out = append(out, "skills")
	}
	return out
}
