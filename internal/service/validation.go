package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/recipe-api/internal/apperror"
)

// Field error messages. Clients match on these strings, so keep them stable.
const (
	msgRequired     = "This field is required."
	msgBlank        = "This field may not be blank."
	msgInvalidEmail = "Enter a valid email address."
	msgEmailTaken   = "user with this email already exists."
	msgBadLogin     = "Unable to authenticate with provided credentials"
	msgInvalidImage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
	msgEmptyFile    = "The submitted file is empty."
)

func msgMinLength(n int) string {
	return fmt.Sprintf("Ensure this field has at least %d characters.", n)
}

func msgMaxLength(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

func msgMinValue(n int) string {
	return fmt.Sprintf("Ensure this value is greater than or equal to %d.", n)
}

// NonFieldErrors is the field key for errors that concern the request as a
// whole rather than one field.
const NonFieldErrors = "non_field_errors"

// fieldErrors collects messages per field so one response reports every
// problem at once.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// err returns nil when nothing was added.
func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperror.Validation(f)
}

// checkText trims s and records blank or over-long values under field.
// It returns the trimmed value.
func (f fieldErrors) checkText(field, s string, maxLen int) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		f.add(field, msgBlank)
	case utf8.RuneCountInString(s) > maxLen:
		f.add(field, msgMaxLength(maxLen))
	}
	return s
}
