// Package translate holds the TranslationAdapter implementations.
package translate

import (
	"context"
	"fmt"
	"strings"
)

// Translator converts text between languages identified by BCP-47 / ISO 639-1 codes
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// SameLanguage reports whether two language codes name the same base language
func SameLanguage(a, b string) bool {
	return BaseLanguage(a) == BaseLanguage(b)
}

// BaseLanguage lowercases a code and strips any region subtag ("pt-BR" -> "pt")
func BaseLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}

// EchoTranslator tags the text with the target language.
// Used for local development and tests with ADAPTER_PROVIDER=echo.
type EchoTranslator struct{}

// NewEchoTranslator creates an echo translator
func NewEchoTranslator() *EchoTranslator {
	return &EchoTranslator{}
}

// Translate returns "[to] text", or text unchanged when no translation is needed
func (e *EchoTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if text == "" || SameLanguage(from, to) {
		return text, nil
	}
	return fmt.Sprintf("[%s] %s", to, text), nil
}
