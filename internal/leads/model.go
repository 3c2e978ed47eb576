package leads

import (
	"regexp"
	"strings"
	"time"
)

// Lead is the canonical record of a visitor's submitted interest. It is
// immutable once built by Normalize and passed by value to downstream
// consumers.
type Lead struct {
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	Phone               string    `json:"phone"`
	Company             string    `json:"company,omitempty"`
	PropertyDescription string    `json:"propertyDescription,omitempty"`
	EstimatedCloseDate  string    `json:"estimatedCloseDate,omitempty"`
	City                string    `json:"city,omitempty"`
	Timeline            string    `json:"timeline,omitempty"`
	Message             string    `json:"message,omitempty"`
	ProjectType         string    `json:"projectType"`
	Source              string    `json:"source"`
	SubmittedAt         time.Time `json:"submittedAt"`
}

// SubmitRequest is the raw contact-form body. The captcha token is accepted
// under two field names for compatibility with older front-end callers;
// CaptchaToken() folds them into one value. Unknown fields are ignored.
type SubmitRequest struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Company             string `json:"company"`
	PropertyDescription string `json:"propertyDescription"`
	EstimatedCloseDate  string `json:"estimatedCloseDate"`
	City                string `json:"city"`
	Timeline            string `json:"timeline"`
	Message             string `json:"message"`
	ProjectType         string `json:"projectType"`
	Source              string `json:"source"`
	Captcha             string `json:"captchaToken"`
	CaptchaLegacy       string `json:"recaptchaToken"`
}

// CaptchaToken returns the presented token, preferring the current field name.
func (r SubmitRequest) CaptchaToken() string {
	if t := strings.TrimSpace(r.Captcha); t != "" {
		return t
	}
	return strings.TrimSpace(r.CaptchaLegacy)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Normalize validates the raw submission and builds the canonical Lead.
// It performs no I/O. defaultSource labels submissions whose page context
// did not set one; now becomes the server-side submission timestamp.
func Normalize(r SubmitRequest, defaultSource string, now time.Time) (Lead, error) {
	name := strings.TrimSpace(r.Name)
	email := strings.TrimSpace(r.Email)
	phone := strings.TrimSpace(r.Phone)
	projectType := strings.TrimSpace(r.ProjectType)

	switch {
	case name == "":
		return Lead{}, ErrMissingName
	case email == "":
		return Lead{}, ErrMissingEmail
	case !emailPattern.MatchString(email):
		return Lead{}, ErrInvalidEmail
	case phone == "":
		return Lead{}, ErrMissingPhone
	case projectType == "":
		return Lead{}, ErrMissingProjectType
	}

	source := strings.TrimSpace(r.Source)
	if source == "" {
		source = defaultSource
	}

	return Lead{
		Name:                name,
		Email:               email,
		Phone:               phone,
		Company:             strings.TrimSpace(r.Company),
		PropertyDescription: strings.TrimSpace(r.PropertyDescription),
		EstimatedCloseDate:  strings.TrimSpace(r.EstimatedCloseDate),
		City:                strings.TrimSpace(r.City),
		Timeline:            strings.TrimSpace(r.Timeline),
		Message:             strings.TrimSpace(r.Message),
		ProjectType:         projectType,
		Source:              source,
		SubmittedAt:         now.UTC(),
	}, nil
}
