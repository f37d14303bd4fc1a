// Package extract pulls the watched fragment out of a page.
package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// RegexPrefix marks a selector that is matched as a regular expression
// against each element's class attribute instead of as a CSS selector.
const RegexPrefix = "regex:"

// Kind tells how a Selector matches elements.
type Kind int

const (
	// Structural selectors are CSS selectors.
	Structural Kind = iota
	// RegexOverClass selectors match the joined class list of an element.
	RegexOverClass
	// Invalid selectors failed to compile and never match.
	Invalid
)

func (k Kind) String() string {
	switch k {
	case Structural:
		return "css"
	case RegexOverClass:
		return "regex"
	default:
		return "invalid"
	}
}

var errEmptySelector = errors.New("selector is empty")

// Selector is a selector expression compiled once when the configuration is loaded.
type Selector struct {
	raw     string
	kind    Kind
	css     cascadia.Selector
	pattern *regexp.Regexp
	err     error
}

// ParseSelector compiles raw into a Selector.
//
// On failure the returned Selector is still usable: it has Kind Invalid,
// keeps the compile error, and extracts as not found.
func ParseSelector(raw string) (Selector, error) {
	s := Selector{raw: raw}
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, RegexPrefix) {
		expr := strings.TrimSpace(strings.TrimPrefix(trimmed, RegexPrefix))
		if expr == "" {
			return s.invalid(errEmptySelector)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return s.invalid(fmt.Errorf("invalid class pattern %q: %w", expr, err))
		}
		s.kind = RegexOverClass
		s.pattern = re
		return s, nil
	}

	if trimmed == "" {
		return s.invalid(errEmptySelector)
	}
	css, err := cascadia.Compile(trimmed)
	if err != nil {
		return s.invalid(fmt.Errorf("invalid css selector %q: %w", trimmed, err))
	}
	s.kind = Structural
	s.css = css
	return s, nil
}

func (s Selector) invalid(err error) (Selector, error) {
	s.kind = Invalid
	s.err = err
	return s, err
}

// String returns the selector as it was written in the configuration.
func (s Selector) String() string { return s.raw }

// Kind returns how the selector matches.
func (s Selector) Kind() Kind { return s.kind }

// Err returns the compile error of an Invalid selector.
func (s Selector) Err() error { return s.err }

// MarshalText keeps the raw form when a selector is serialized.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.raw), nil
}
