package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/baycode/hook"
)

// MaxBodyRunes bounds a single chat message.
const MaxBodyRunes = 500

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

// Validator checks chat bodies before they are stored. Bodies are kept as
// sent apart from surrounding whitespace; escaping is left to whatever
// renders them, since members post code.
type Validator struct {
	maxRunes int
}

func NewValidator() *Validator {
	return &Validator{maxRunes: MaxBodyRunes}
}

// Check returns the trimmed body or a validation error.
func (v *Validator) Check(body string) (string, error) {
	out := strings.TrimSpace(body)
	if out == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(out) > v.maxRunes {
		return "", ErrMessageTooLong
	}
	return out, nil
}

// Attach registers the validator as the first OnChatSend handler. Rejected
// bodies interrupt the chain.
func (v *Validator) Attach(h *hook.Center) {
	h.Register(hook.OnChatSend, 0, "chat.validate", func(_ context.Context, _ string, data any) (any, error) {
		body, _ := data.(string)
		out, err := v.Check(body)
		if err != nil {
			return data, fmt.Errorf("%w: %w", hook.ErrInterrupt, err)
		}
		return out, nil
	})
}
