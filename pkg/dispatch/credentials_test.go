package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskrun/pkg/storage"
)

func TestComposeCredentialsGlobalScope(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutProviderSecret("global", "github", "ghp_global"))

	env, secrets := composeCredentials(store, "repo-1")

	require.Equal(t, "ghp_global", env["GH_TOKEN"])
	require.Equal(t, "ghp_global", env["GITHUB_TOKEN"])
	require.Equal(t, "ghp_global", secrets["GH_TOKEN"])
}

func TestComposeCredentialsRepoScopeTakesPrecedence(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutProviderSecret("global", "github", "ghp_global"))
	require.NoError(t, store.PutProviderSecret("repo-1", "github", "ghp_repo"))

	env, _ := composeCredentials(store, "repo-1")

	require.Equal(t, "ghp_repo", env["GH_TOKEN"])
}

func TestComposeCredentialsZaiIncludesBaseURL(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.PutProviderSecret("global", "zai", "zai-key"))

	env, secrets := composeCredentials(store, "repo-1")

	require.Equal(t, "zai-key", env["Z_AI_API_KEY"])
	require.Equal(t, "https://api.z.ai/api/anthropic", env["ANTHROPIC_BASE_URL"])
	require.Equal(t, "zai-key", secrets["ANTHROPIC_AUTH_TOKEN"])
}

func TestComposeCredentialsSkipsMissingProviders(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	env, secrets := composeCredentials(store, "repo-1")

	require.Empty(t, env)
	require.Empty(t, secrets)
}
