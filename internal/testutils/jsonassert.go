package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// Presence matches any value of a key that must exist, such as a session id.
const Presence = "<<PRESENCE>>"

// JSONAssertOptions controls how documents are compared.
type JSONAssertOptions struct {
	// IgnoreExtraKeys drops keys of actual objects that expected does not name.
	IgnoreExtraKeys bool `default:"true"`
	// AllowPresencePlaceholder lets expected use Presence as a wildcard.
	AllowPresencePlaceholder bool `default:"true"`
	IgnoredFields            []string
}

// JSONOption configures a JSONAsserter
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a gojsondiff
// rendering of the difference.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

func NewJSONAsserter(t TestingT) *JSONAsserter {
	ja := &JSONAsserter{t: t}
	defaults.SetDefaults(&ja.options)
	return ja
}

func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares one JSON document.
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) bool {
	if h, ok := ja.t.(helper); ok {
		h.Helper()
	}
	if diff := ja.Diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
		return false
	}
	return true
}

// AssertLines compares newline-delimited JSON, one document per line.
func (ja *JSONAsserter) AssertLines(actual, expected string) bool {
	if h, ok := ja.t.(helper); ok {
		h.Helper()
	}
	a, e := splitLines(actual), splitLines(expected)
	if len(a) != len(e) {
		ja.t.Errorf("JSON assertion failed: %d lines, expected %d\nactual:\n%s", len(a), len(e), actual)
		return false
	}
	ok := true
	for i := range e {
		if diff := ja.Diff(a[i], e[i]); diff != "" {
			ja.t.Errorf("JSON assertion failed at line %d:\n%s", i+1, diff)
			ok = false
		}
	}
	return ok
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Diff returns "" when the documents match under the configured options.
func (ja *JSONAsserter) Diff(actualJSON, expectedJSON string) string {
	var expected, actual any
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	expected = map[string]any{"root": expected}
	actual = map[string]any{"root": actual}

	if ja.options.AllowPresencePlaceholder {
		fillPresence(expected, actual)
	}
	for _, field := range ja.options.IgnoredFields {
		dropField(expected, field)
		dropField(actual, field)
	}
	if ja.options.IgnoreExtraKeys {
		pruneExtraKeys(actual, expected)
	}

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)
	diff, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}
	out, _ := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true}).Format(diff)
	return out
}

// fillPresence copies actual values over Presence placeholders when the key exists.
func fillPresence(expected, actual any) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return
		}
		for k, v := range exp {
			av, present := act[k]
			if s, isStr := v.(string); isStr && s == Presence {
				if present {
					exp[k] = av
				}
				continue
			}
			fillPresence(v, av)
		}
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				if s, isStr := exp[i].(string); isStr && s == Presence {
					exp[i] = act[i]
					continue
				}
				fillPresence(exp[i], act[i])
			}
		}
	}
}

func pruneExtraKeys(actual, expected any) {
	switch act := actual.(type) {
	case map[string]any:
		exp, ok := expected.(map[string]any)
		if !ok {
			return
		}
		for k, v := range act {
			ev, keep := exp[k]
			if !keep {
				delete(act, k)
				continue
			}
			pruneExtraKeys(v, ev)
		}
	case []any:
		exp, ok := expected.([]any)
		if !ok {
			return
		}
		for i := range act {
			if i < len(exp) {
				pruneExtraKeys(act[i], exp[i])
			}
		}
	}
}

func dropField(doc any, field string) {
	switch v := doc.(type) {
	case map[string]any:
		delete(v, field)
		for _, child := range v {
			dropField(child, field)
		}
	case []any:
		for _, child := range v {
			dropField(child, field)
		}
	}
}

func WithIgnoreExtraKeys(v bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = v }
}

func WithAllowPresencePlaceholder(v bool) JSONOption {
	return func(o *JSONAssertOptions) { o.AllowPresencePlaceholder = v }
}

func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = append(o.IgnoredFields, fields...) }
}
