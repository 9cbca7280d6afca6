package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const DefaultMaxDisplayNameLength = 32

var validate = validator.New()

// normalizeDisplayName trims the name and checks it is non-empty, printable
// and at most maxLen runes long.
func normalizeDisplayName(name string, maxLen int) (string, error) {
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidDisplayName)
	}
	if strings.ContainsFunc(name, isControl) {
		return "", fmt.Errorf("%w: control characters", ErrInvalidDisplayName)
	}
	if err := validate.Var(name, fmt.Sprintf("required,max=%d", maxLen)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDisplayName, err)
	}
	return name, nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
