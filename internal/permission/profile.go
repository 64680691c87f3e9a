// Package permission implements the pure, stateless regex permission engine
// that decides whether a tool invocation is allowed, needs human approval,
// or is denied.
package permission

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Result is the outcome of a permission check.
type Result string

const (
	Allow Result = "allow"
	Ask   Result = "ask"
	Deny  Result = "deny"
)

// InvalidPatternError is returned when a profile pattern fails to compile.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid permission pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// UnknownPresetError is returned when a preset name has no registered profile.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("unknown permission preset: %q", e.Name)
}

// Profile is an ordered pair of regex pattern lists. Patterns are compiled
// once, at construction, and matched full-string (never substring).
type Profile struct {
	AllowPatterns []string `json:"allow"`
	AskPatterns   []string `json:"ask"`

	allow []*regexp.Regexp
	ask   []*regexp.Regexp
}

// NewProfile compiles allow/ask pattern lists into a Profile. Patterns are
// anchored internally so that Decide always performs a full-string match,
// matching Go's regexp package (which has no native fullmatch) to the
// semantics of Python's re.fullmatch used by the reference implementation.
func NewProfile(allow, ask []string) (*Profile, error) {
	compiledAllow, err := compileAll(allow)
	if err != nil {
		return nil, err
	}
	compiledAsk, err := compileAll(ask)
	if err != nil {
		return nil, err
	}
	return &Profile{
		AllowPatterns: allow,
		AskPatterns:   ask,
		allow:         compiledAllow,
		ask:           compiledAsk,
	}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(anchor(p))
		if err != nil {
			return nil, &InvalidPatternError{Pattern: p, Err: err}
		}
		out = append(out, re)
	}
	return out, nil
}

// anchor wraps a pattern so regexp.MatchString behaves like re.fullmatch.
// A plain `^...$` wrap is not sufficient for patterns containing top-level
// alternation, so the pattern is grouped in a non-capturing group first.
func anchor(pattern string) string {
	return `^(?:` + pattern + `)$`
}

// MarshalJSON serializes the profile as {"allow": [...], "ask": [...]}.
func (p *Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Allow []string `json:"allow"`
		Ask   []string `json:"ask"`
	}{Allow: p.AllowPatterns, Ask: p.AskPatterns})
}

// UnmarshalJSON parses an inline profile of the form
// {"allow": [...], "ask": [...]} and compiles its patterns.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw struct {
		Allow []string `json:"allow"`
		Ask   []string `json:"ask"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	built, err := NewProfile(raw.Allow, raw.Ask)
	if err != nil {
		return err
	}
	*p = *built
	return nil
}

// presets holds the built-in permission profiles from spec.md §4.1.
var presets = map[string]struct {
	allow []string
	ask   []string
}{
	"open": {
		allow: []string{"tool:.*"},
		ask:   []string{},
	},
	"standard": {
		// The spec's allow pattern for git is tool:git:(?!push|merge_request).*,
		// a negative lookahead Go's RE2-based regexp engine cannot compile.
		// Rewritten as an explicit alternation over the safe git operations;
		// semantically identical given the fixed git_* tool set (see DESIGN.md).
		allow: []string{
			`tool:(create_file|str_replace|str_replace_all|view|insert_at|replace_lines):.*`,
			`tool:git:(init|commit|branch|checkout|diff|log) .*`,
			`tool:agent_comm:.*`,
		},
		ask: []string{
			`tool:bash:.*`,
			`tool:git:(push|merge_request) .*`,
			`tool:self_edit:.*`,
		},
	},
	"locked": {
		allow: []string{`tool:view:.*`},
		ask:   []string{},
	},
}

// GetPreset returns a freshly compiled copy of a built-in preset by name.
func GetPreset(name string) (*Profile, error) {
	p, ok := presets[name]
	if !ok {
		return nil, &UnknownPresetError{Name: name}
	}
	return NewProfile(append([]string(nil), p.allow...), append([]string(nil), p.ask...))
}

// PresetNames returns the names of all built-in presets, for validation and
// help text.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// FormatAction builds the canonical action string `tool:<tool>:<detail>`.
func FormatAction(tool, detail string) string {
	return "tool:" + tool + ":" + detail
}
