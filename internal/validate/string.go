// Package validate holds input validation and sanitization shared by
// the API handlers: string constraints, upload checks, and URL/SSRF
// screening for user-supplied links.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrSQLKeyword        = errors.New("string contains SQL keywords")
	ErrEmpty             = errors.New("string is empty")
)

// SQL screening is a heuristic backstop only; every query in the repo
// is parameterized.
var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|EXEC|EXECUTE|UNION|JOIN|WHERE|FROM)\b`)
	sqlSymbols        = []string{"--", "/*", "*/", ";--", "xp_", "sp_"}
)

var displayNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _\-\.]+$`)

// StringConstraints bounds a user-supplied string. Lengths count runes,
// not bytes, and zero means unbounded.
type StringConstraints struct {
	MinLength        int
	MaxLength        int
	AllowedPattern   *regexp.Regexp
	DisallowedWords  []string
	CheckSQLKeywords bool
	AllowEmpty       bool
	TrimSpace        bool
}

// String checks s against the constraints and returns it, trimmed when
// TrimSpace is set.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if s == "" {
		if constraints.AllowEmpty {
			return s, nil
		}
		return "", ErrEmpty
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}
	if constraints.CheckSQLKeywords {
		if err := checkSQLKeywords(s); err != nil {
			return "", err
		}
	}
	for _, word := range constraints.DisallowedWords {
		if strings.Contains(strings.ToUpper(s), strings.ToUpper(word)) {
			return "", fmt.Errorf("string contains disallowed word: %q", word)
		}
	}
	return s, nil
}

// checkSQLKeywords flags SQL keywords appearing as standalone words,
// so a display name like "The Executive" does not trip on EXEC, plus
// comment/procedure symbol sequences anywhere in the string.
func checkSQLKeywords(s string) error {
	if match := sqlKeywordPattern.FindString(s); match != "" {
		return fmt.Errorf("%w: contains %q", ErrSQLKeyword, match)
	}
	for _, symbol := range sqlSymbols {
		if strings.Contains(s, symbol) {
			return fmt.Errorf("%w: contains %q", ErrSQLKeyword, symbol)
		}
	}
	return nil
}

// SanitizeHTML escapes HTML metacharacters in user-generated text.
func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// SanitizeString validates then HTML-escapes s.
func SanitizeString(s string, constraints StringConstraints) (string, error) {
	validated, err := String(s, constraints)
	if err != nil {
		return "", err
	}
	return SanitizeHTML(validated), nil
}

// DisplayName validates a profile display name: 1-50 chars from a
// conservative character set, screened for SQL keywords.
func DisplayName(name string) (string, error) {
	return SanitizeString(name, StringConstraints{
		MinLength:        1,
		MaxLength:        50,
		AllowedPattern:   displayNamePattern,
		CheckSQLKeywords: true,
		TrimSpace:        true,
	})
}

// AlbumTitle validates a photo album title: 1-100 chars, screened for
// SQL keywords.
func AlbumTitle(title string) (string, error) {
	return SanitizeString(title, StringConstraints{
		MinLength:        1,
		MaxLength:        100,
		CheckSQLKeywords: true,
		TrimSpace:        true,
	})
}

// AboutMe validates the free-form profile bio, up to 2000 chars and
// optional. SQL screening is skipped to leave bios unconstrained.
func AboutMe(content string) (string, error) {
	return SanitizeString(content, StringConstraints{
		MaxLength:  2000,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

// Description validates an album or photo description, up to 5000
// chars and optional.
func Description(desc string) (string, error) {
	return SanitizeString(desc, StringConstraints{
		MaxLength:  5000,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}
