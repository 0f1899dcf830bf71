// Package providers implements the provider-credential fan-out table
//: given a harness provider name, which environment
// variable names its decrypted secret populates, shared by the
// lifecycle manager's host-level credential passthrough and the
// dispatcher's per-job secrets composition.
package providers

import "strings"

// KnownProviders lists every provider with a dedicated fan-out entry.
var KnownProviders = []string{"github", "codex", "opencode", "claude-code", "zai", "llmtornado"}

// EnvKeys returns the environment variable names a provider's secret
// value is written to, plus any fixed companion variables the
// provider additionally requires.
func EnvKeys(provider string) (keys []string, extra map[string]string) {
	switch provider {
	case "github":
		return []string{"GH_TOKEN", "GITHUB_TOKEN"}, nil
	case "codex":
		return []string{"CODEX_API_KEY", "OPENAI_API_KEY"}, nil
	case "opencode":
		return []string{"OPENCODE_API_KEY"}, nil
	case "claude-code":
		return []string{"ANTHROPIC_API_KEY"}, nil
	case "zai", "llmtornado":
		return []string{"Z_AI_API_KEY", "ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_API_KEY"},
			map[string]string{"ANTHROPIC_BASE_URL": "https://api.z.ai/api/anthropic"}
	default:
		return []string{"SECRET_" + sanitize(provider)}, nil
	}
}

func sanitize(provider string) string {
	return strings.ReplaceAll(strings.ToUpper(provider), "-", "_")
}
