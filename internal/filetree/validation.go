package filetree

import (
	"errors"
	"strings"
	"unicode/utf8"

	"filetree-server/internal/models"
)

const MaxTags = 5

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name must not be empty")
	}
	if !utf8.ValidString(name) {
		return "", invalid("name must be valid UTF-8")
	}
	if strings.ContainsAny(name, "/\x00") {
		return "", invalid("name must not contain '/' or NUL")
	}
	if name == models.RecycleBinName {
		return "", invalid("name %q is reserved", name)
	}
	return name, nil
}

// normalizeTags lowercases, trims and de-duplicates tags, preserving order.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTags {
		return nil, invalid("at most %d tags allowed, got %d", MaxTags, len(out))
	}
	return out, nil
}

func validateLevel(level models.AccessLevel) error {
	switch level {
	case models.AccessView, models.AccessEdit:
		return nil
	}
	return invalid("access level must be %q or %q", models.AccessView, models.AccessEdit)
}

func isClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrLocked) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnsupported)
}
