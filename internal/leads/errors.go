package leads

import "errors"

var (
	// ErrMissingName is returned when the name is empty after trimming
	ErrMissingName = errors.New("name is required")

	// ErrMissingEmail is returned when the email is empty after trimming
	ErrMissingEmail = errors.New("email is required")

	// ErrInvalidEmail is returned when the email does not look like an address
	ErrInvalidEmail = errors.New("email is invalid")

	// ErrMissingPhone is returned when the phone is empty after trimming
	ErrMissingPhone = errors.New("phone is required")

	// ErrMissingProjectType is returned when no service category was selected
	ErrMissingProjectType = errors.New("projectType is required")
)
