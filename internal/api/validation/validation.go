package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hugh/issueflow/internal/database/models"
)

// EmailRegex validates email format
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// MaxNameLength bounds organization, project, integration and user names.
const MaxNameLength = 100

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidRole reports whether role is an organization membership role
func IsValidRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleMember
}

// IsValidName checks a display name is present and not too long
func IsValidName(name string) (bool, string) {
	name = CleanName(name)
	if name == "" {
		return false, "Name is required"
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return false, "Name must be at most 100 characters"
	}
	return true, ""
}

// IsValidPassword checks password strength
func IsValidPassword(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > 128 {
		return false, "Password must be at most 128 characters"
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
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return false, "Password must contain at least one uppercase letter"
	}
	if !hasLower {
		return false, "Password must contain at least one lowercase letter"
	}
	if !hasNumber {
		return false, "Password must contain at least one number"
	}
	if !hasSpecial {
		return false, "Password must contain at least one special character"
	}

	return true, ""
}

// CleanName strips control characters and surrounding whitespace from a
// display name. Handlers store names in this form.
func CleanName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}

// CleanNamePtr applies CleanName to an optional field.
func CleanNamePtr(name *string) *string {
	if name == nil {
		return nil
	}
	cleaned := CleanName(*name)
	return &cleaned
}

// Truncate shortens s to at most max runes
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
