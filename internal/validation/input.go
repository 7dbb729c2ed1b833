// Package validation checks and cleans values received by the relay before
// they reach a Logger.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultMaxIDLength      = 128
	DefaultMaxDepth         = 10
	DefaultMaxKeyLength     = 64
	DefaultMaxContextLength = 256 // log record context, e.g. a module or request path
	DefaultMaxStringLength  = 8192
)

// org and bot IDs: alphanumeric, underscore, hyphen, dot
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ErrInputTooLong indicates the input string exceeds the maximum allowed length.
var ErrInputTooLong = errors.New("input exceeds maximum length")

// ErrInvalidChars indicates the input string contains disallowed characters.
var ErrInvalidChars = errors.New("input contains invalid characters")

// ErrMaxDepthExceeded indicates the nested structure exceeds the maximum allowed depth.
var ErrMaxDepthExceeded = errors.New("maximum nesting depth exceeded")

// Limits bounds the size of a sanitized message.
type Limits struct {
	MaxDepth        int
	MaxKeyLength    int
	MaxStringLength int
}

// DefaultLimits returns the limits used when the relay config sets none.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:        DefaultMaxDepth,
		MaxKeyLength:    DefaultMaxKeyLength,
		MaxStringLength: DefaultMaxStringLength,
	}
}

// IsValidID checks an org or bot ID. Empty IDs are valid; they are sent
// as "unknown".
func IsValidID(id string, maxLength int) error {
	if id == "" {
		return nil
	}
	if len(id) > maxLength {
		return fmt.Errorf("%w: got %d, max %d", ErrInputTooLong, len(id), maxLength)
	}
	if !idRegex.MatchString(id) {
		return fmt.Errorf("%w: allowed alphanumeric, underscore, hyphen, dot", ErrInvalidChars)
	}
	return nil
}

// SanitizeString trims whitespace, truncates to maxLength bytes and drops
// control characters other than newline and tab.
func SanitizeString(s string, maxLength int) string {
	s = strings.TrimSpace(s)
	if maxLength > 0 && len(s) > maxLength {
		s = s[:maxLength]
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == ' ' {
			return r
		}
		if unicode.IsPrint(r) && r != unicode.ReplacementChar {
			return r
		}
		return -1
	}, s)
}

// SanitizeMessage cleans a decoded JSON message. Strings are sanitized,
// objects and arrays are walked up to lim.MaxDepth levels, other scalars
// are returned unchanged.
func SanitizeMessage(msg interface{}, lim Limits) (interface{}, error) {
	return sanitizeValue(msg, lim, 1)
}

func sanitizeValue(value interface{}, lim Limits, depth int) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return SanitizeString(v, lim.MaxStringLength), nil
	case map[string]interface{}:
		return sanitizeMap(v, lim, depth)
	case []interface{}:
		return sanitizeSlice(v, lim, depth)
	default:
		return v, nil
	}
}

func sanitizeMap(data map[string]interface{}, lim Limits, depth int) (map[string]interface{}, error) {
	if depth > lim.MaxDepth {
		return nil, ErrMaxDepthExceeded
	}

	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		k := SanitizeString(key, lim.MaxKeyLength)
		if k == "" {
			continue
		}
		v, err := sanitizeValue(value, lim, depth+1)
		if err != nil {
			return nil, fmt.Errorf("key '%s': %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func sanitizeSlice(data []interface{}, lim Limits, depth int) ([]interface{}, error) {
	if depth > lim.MaxDepth {
		return nil, ErrMaxDepthExceeded
	}

	out := make([]interface{}, len(data))
	for i, item := range data {
		v, err := sanitizeValue(item, lim, depth+1)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
