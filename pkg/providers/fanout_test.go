package providers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvKeysKnownProviders(t *testing.T) {
	keys, extra := EnvKeys("github")
	require.Equal(t, []string{"GH_TOKEN", "GITHUB_TOKEN"}, keys)
	require.Nil(t, extra)

	keys, extra = EnvKeys("zai")
	require.Equal(t, []string{"Z_AI_API_KEY", "ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_API_KEY"}, keys)
	require.Equal(t, "https://api.z.ai/api/anthropic", extra["ANTHROPIC_BASE_URL"])

	keysLlm, _ := EnvKeys("llmtornado")
	require.Equal(t, keys, keysLlm)
}

func TestEnvKeysUnknownProviderFallsBackToGenericSecret(t *testing.T) {
	keys, extra := EnvKeys("my-custom-harness")
	require.Equal(t, []string{"SECRET_MY_CUSTOM_HARNESS"}, keys)
	require.Nil(t, extra)
}
