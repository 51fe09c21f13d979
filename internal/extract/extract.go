// Package extract normalizes raw external attribute bags into a fixed
// identity shape. Each provider has its own field names; unknown providers
// fall back to a generic set of common names.
package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingSubject indicates the attribute bag carries no usable
// provider-side subject id. Resolution aborts on this error.
var ErrMissingSubject = errors.New("extract: missing subject id")

// Identity is the normalized view of one external identity assertion.
type Identity struct {
	SubjectID     string
	Email         string
	Username      string
	FullName      string
	FirstName     string
	LastName      string
	Phone         string
	AvatarURL     string
	BirthDate     string
	Department    string
	EmailVerified bool
	PhoneVerified bool
	// DirectoryID is the explicit directory record id when the provider
	// exposes one; it takes precedence over SubjectID for directory
	// lookups.
	DirectoryID string
}

// Extractor derives a normalized identity from a raw attribute bag.
type Extractor interface {
	Provider() string
	Extract(attrs map[string]any) (Identity, error)
}

var registry = map[string]Extractor{
	"google":  googleExtractor{},
	"oneid":   oneIDExtractor{},
	"hemis":   hemisEmployeeExtractor{},
	"student": hemisStudentExtractor{},
}

// ForProvider returns the extractor registered for the provider name, or
// the generic fallback.
func ForProvider(name string) Extractor {
	if e, ok := registry[strings.ToLower(name)]; ok {
		return e
	}
	return genericExtractor{name: name}
}

// Lookup traverses the attribute bag along a dot-notation path.
func Lookup(attrs map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = attrs
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// AsString renders an extracted value as its string representation.
func AsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON numbers decode as float64; integral ids must not grow a
		// fractional suffix.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func firstString(attrs map[string]any, paths ...string) string {
	for _, path := range paths {
		if v, ok := Lookup(attrs, path); ok {
			if s := strings.TrimSpace(AsString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func boolAt(attrs map[string]any, path string) bool {
	v, ok := Lookup(attrs, path)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		parsed, err := strconv.ParseBool(val)
		return err == nil && parsed
	default:
		return false
	}
}

func joinName(parts ...string) string {
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return strings.Join(fields, " ")
}
