package provider

import (
	"fmt"
	"os"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// lookupKey returns explicit, or the first of envVars that is set.
func lookupKey(explicit string, envVars ...string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s not set", envVars[0])
}

// orDefault returns v unless it is empty.
func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// withProvider stamps id onto models that lack a provider.
func withProvider(id string, models []types.Model) []types.Model {
	for i := range models {
		if models[i].ProviderID == "" {
			models[i].ProviderID = id
		}
	}
	return models
}
