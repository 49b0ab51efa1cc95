package questions

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrTagNameTooLong indicates a tag name above MaxTagNameLength characters.
var ErrTagNameTooLong = errors.New("questions: tag name too long")

// ParseTagList splits a comma separated form value into raw tag candidates.
func ParseTagList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// NormalizeTagNames trims every candidate, drops empty ones and removes exact
// duplicates while keeping first-seen order. Matching is case-sensitive, so
// "Go" and "go" are different tags. Any name longer than MaxTagNameLength
// characters rejects the whole set.
func NormalizeTagNames(candidates []string) ([]string, error) {
	names := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		name := strings.TrimSpace(candidate)
		if name == "" {
			continue
		}
		if length := utf8.RuneCountInString(name); length > MaxTagNameLength {
			return nil, fmt.Errorf("%w: %q has %d characters, limit is %d", ErrTagNameTooLong, name, length, MaxTagNameLength)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}
