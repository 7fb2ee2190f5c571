package providers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testRule() Rule {
	return Rule{
		Name:  "openai",
		Hosts: []string{"api.openai.com"},
		Paths: []string{"/v1/chat/*"},
		Response: ResponseFields{
			UsagePath:             "body.usage",
			PromptTokensField:     "prompt_tokens",
			CompletionTokensField: "completion_tokens",
			ModelPath:             "body.model",
		},
		RequestExtractor: ExtractorNone,
	}
}

func TestMatch_HostAndPathGlob(t *testing.T) {
	m, err := Compile([]Rule{testRule()})
	require.NoError(t, err)

	require.NotNil(t, m.Match("api.openai.com", "/v1/chat/completions"))
	require.Nil(t, m.Match("api.openai.com", "/v1/embeddings"))
	require.Nil(t, m.Match("api.anthropic.com", "/v1/chat/completions"))
}

func TestMatchAndExtract_UnmatchedIgnored(t *testing.T) {
	m, err := Compile([]Rule{testRule()})
	require.NoError(t, err)

	rule, usage, err := m.MatchAndExtract("unknown.example.com", "/v1/chat/completions", nil)
	require.NoError(t, err)
	require.Nil(t, rule)
	require.Equal(t, Usage{}, usage)
}

func TestMatchAndExtract_ExtractsTokensFromResponse(t *testing.T) {
	m, err := Compile([]Rule{testRule()})
	require.NoError(t, err)

	body := []byte(`{"model":"gpt-4o","usage":{"prompt_tokens":12,"completion_tokens":34}}`)
	rule, usage, err := m.MatchAndExtract("api.openai.com", "/v1/chat/completions", body)
	require.NoError(t, err)
	require.NotNil(t, rule)
	require.Equal(t, "openai", rule.Name)
	require.Equal(t, 12, usage.PromptTokens)
	require.Equal(t, 34, usage.CompletionTokens)
	require.Equal(t, "gpt-4o", usage.Model)
}

func TestFirstMatchingRuleWins(t *testing.T) {
	broad := Rule{Name: "broad", Hosts: []string{"*"}, Paths: []string{"*"}}
	specific := testRule()
	m, err := Compile([]Rule{specific, broad})
	require.NoError(t, err)

	rule := m.Match("api.openai.com", "/v1/chat/completions")
	require.Equal(t, "openai", rule.Name)
}
