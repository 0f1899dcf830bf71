package dispatch

import (
	"github.com/cuemby/taskrun/pkg/providers"
	"github.com/cuemby/taskrun/pkg/storage"
)

// composeCredentials builds the job env and secrets-sidecar maps for a
// run's provider credential fan-out. Repository-scoped
// secrets take precedence over the "global" scope; a provider with
// neither is skipped rather than failing the dispatch.
func composeCredentials(store storage.Store, repositoryID string) (env map[string]string, secrets map[string]string) {
	env = make(map[string]string)
	secrets = make(map[string]string)

	for _, provider := range providers.KnownProviders {
		value, err := store.GetProviderSecret(repositoryID, provider)
		if err != nil || value == "" {
			value, err = store.GetProviderSecret("global", provider)
		}
		if err != nil || value == "" {
			continue
		}

		keys, extra := providers.EnvKeys(provider)
		for _, k := range keys {
			env[k] = value
			secrets[k] = value
		}
		for k, v := range extra {
			env[k] = v
			secrets[k] = v
		}
	}

	return env, secrets
}
