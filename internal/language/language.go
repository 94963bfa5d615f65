package language

import (
	"errors"
	"strings"
)

// Tag is a conversation language. The set is closed; anything else maps to the default.
type Tag string

const (
	English Tag = "en"
	Spanish Tag = "es"
)

var ErrUnsupported = errors.New("unsupported language")

func (t Tag) Valid() bool {
	switch t {
	case English, Spanish:
		return true
	default:
		return false
	}
}

func (t Tag) String() string { return string(t) }

// Parse validates a tag at a system boundary (config, admin API).
func Parse(s string) (Tag, error) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", ErrUnsupported
	}
	return t, nil
}
