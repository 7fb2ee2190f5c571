// Package providers implements the LLM probe's declarative provider
// match rules (spec.md §6 "Provider match rule"). The first matching
// rule is applied; unmatched calls are ignored. Per spec.md §9's open
// question, token counts are extracted from the response only — the
// request_extractor field is accepted for schema completeness but,
// consistent with the spec's stated resolution, does not feed
// token-count extraction.
package providers

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gobwas/glob"
)

// RequestExtractor names how (if at all) request-side text would be
// extracted; retained for configuration compatibility but unused by
// token-count extraction (see package doc).
type RequestExtractor string

const (
	ExtractorMessages RequestExtractor = "messages"
	ExtractorContents RequestExtractor = "contents"
	ExtractorPrompt   RequestExtractor = "prompt"
	ExtractorNone     RequestExtractor = "none"
)

// ResponseFields names where usage data sits in a provider's response
// body. UsagePath and ModelPath are expr-lang expressions evaluated
// against the parsed JSON document, bound as "body" (mirroring how the
// teacher's internal/attributes package pre-compiles expr-lang programs
// against a small evaluation environment); PromptTokensField and
// CompletionTokensField are plain keys looked up in the object that
// UsagePath yields.
type ResponseFields struct {
	UsagePath             string `mapstructure:"usage_path"`
	PromptTokensField     string `mapstructure:"prompt_tokens_field"`
	CompletionTokensField string `mapstructure:"completion_tokens_field"`
	ModelPath             string `mapstructure:"model_path"`
}

// Rule is one declarative provider-match rule.
type Rule struct {
	Name             string           `mapstructure:"name"`
	Hosts            []string         `mapstructure:"hosts"`
	Paths            []string         `mapstructure:"paths"`
	Response         ResponseFields   `mapstructure:"response"`
	RequestExtractor RequestExtractor `mapstructure:"request_extractor"`
}

// compiledRule pre-compiles a Rule's globs and expressions once, at
// config-load time, so per-call matching does no parsing.
type compiledRule struct {
	rule       Rule
	hostGlobs  []glob.Glob
	pathGlobs  []glob.Glob
	usageProg  *vm.Program
	modelProg  *vm.Program
}

// Matcher holds every configured provider rule, compiled and ready to
// evaluate against observed LLM calls.
type Matcher struct {
	rules []compiledRule
}

// Compile validates and pre-compiles a list of provider rules.
func Compile(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("providers: compiling rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, cr)
	}
	return &Matcher{rules: compiled}, nil
}

func compileRule(r Rule) (compiledRule, error) {
	cr := compiledRule{rule: r}
	for _, pattern := range r.Hosts {
		g, err := glob.Compile(pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("host pattern %q: %w", pattern, err)
		}
		cr.hostGlobs = append(cr.hostGlobs, g)
	}
	for _, pattern := range r.Paths {
		g, err := glob.Compile(pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("path pattern %q: %w", pattern, err)
		}
		cr.pathGlobs = append(cr.pathGlobs, g)
	}

	env := map[string]interface{}{"body": map[string]interface{}{}}
	if r.Response.UsagePath != "" {
		prog, err := expr.Compile(r.Response.UsagePath, expr.Env(env))
		if err != nil {
			return compiledRule{}, fmt.Errorf("usage_path expression: %w", err)
		}
		cr.usageProg = prog
	}
	if r.Response.ModelPath != "" {
		prog, err := expr.Compile(r.Response.ModelPath, expr.Env(env))
		if err != nil {
			return compiledRule{}, fmt.Errorf("model_path expression: %w", err)
		}
		cr.modelProg = prog
	}
	return cr, nil
}

// Match returns the first rule whose host and path globs both match,
// or nil if none do.
func (m *Matcher) Match(host, path string) *Rule {
	cr := m.match(host, path)
	if cr == nil {
		return nil
	}
	return &cr.rule
}

func (m *Matcher) match(host, path string) *compiledRule {
	for i := range m.rules {
		cr := &m.rules[i]
		if !anyGlobMatches(cr.hostGlobs, host) {
			continue
		}
		if !anyGlobMatches(cr.pathGlobs, path) {
			continue
		}
		return cr
	}
	return nil
}

// MatchAndExtract finds the first matching rule for (host, path) and,
// if found, extracts token usage from responseBody per that rule.
// Returns a nil Rule when no rule matches, per spec.md §6 ("unmatched
// calls are ignored").
func (m *Matcher) MatchAndExtract(host, path string, responseBody []byte) (*Rule, Usage, error) {
	cr := m.match(host, path)
	if cr == nil {
		return nil, Usage{}, nil
	}
	usage, err := extractUsage(&cr.rule, cr, responseBody)
	return &cr.rule, usage, err
}

func anyGlobMatches(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Usage is the token/model data extracted from a matched call's
// response body.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Model            string
}

// extractUsage runs the matched rule's response-field expressions
// against the parsed response body. A rule with no usage_path
// configured yields a zero Usage without error.
func extractUsage(rule *Rule, cr *compiledRule, responseBody []byte) (Usage, error) {
	if cr.usageProg == nil {
		return Usage{}, nil
	}
	var body map[string]interface{}
	if err := json.Unmarshal(responseBody, &body); err != nil {
		return Usage{}, fmt.Errorf("providers: parsing response body: %w", err)
	}
	env := map[string]interface{}{"body": body}

	out, err := expr.Run(cr.usageProg, env)
	if err != nil {
		return Usage{}, fmt.Errorf("providers: evaluating usage_path: %w", err)
	}
	usage, _ := out.(map[string]interface{})

	var u Usage
	if v, ok := usage[rule.Response.PromptTokensField]; ok {
		u.PromptTokens = toInt(v)
	}
	if v, ok := usage[rule.Response.CompletionTokensField]; ok {
		u.CompletionTokens = toInt(v)
	}
	if cr.modelProg != nil {
		if modelOut, err := expr.Run(cr.modelProg, env); err == nil {
			if s, ok := modelOut.(string); ok {
				u.Model = s
			}
		}
	}
	return u, nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
