package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")

	// Usernames may be plain handles or e-mail addresses
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]{3,50}$`)

	dataTypeRegex = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateUsername checks if a username is valid
func ValidateUsername(username string) error {
	username = SanitizeString(username)

	if username == "" {
		return invalid("username cannot be empty")
	}
	if len(username) < 3 {
		return invalid("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return invalid("username must not exceed 50 characters")
	}
	if !usernameRegex.MatchString(username) {
		return invalid("username may only contain letters, numbers and _ . @ + -")
	}

	return nil
}

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return invalid("password must be at least 8 characters")
	}
	if len(password) > 72 {
		// bcrypt ignores everything past 72 bytes
		return invalid("password must not exceed 72 characters")
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return invalid("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return invalid("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return invalid("password must contain at least one number")
	}
	if !hasSpecial {
		return invalid("password must contain at least one special character")
	}

	return nil
}

// ValidateDataType checks the shape of a configuration id. Whether the id is
// known is decided by the registry.
func ValidateDataType(dataType string) error {
	if dataType == "" {
		return invalid("dataType is required")
	}
	if !dataTypeRegex.MatchString(dataType) {
		return invalid("dataType %q is malformed", dataType)
	}
	return nil
}

// ClampLimit returns limit bounded to [1, max], using def when limit is not
// positive.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}
