package types

// Config represents the chat relay configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model selection, "provider/model" (e.g. "gemini/gemini-2.5-flash")
	Model string `json:"model,omitempty"`

	// Provider configs
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	Server   ServerConfig   `json:"server"`
	Persona  PersonaConfig  `json:"persona"`
	Registry RegistryConfig `json:"registry"`
	Log      LogConfig      `json:"log"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Model is the model ID, or the endpoint ID for ARK.
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"maxTokens,omitempty"`

	// Options is an alternate nesting of APIKey and BaseURL.
	Options *ProviderOptions `json:"options,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions holds nested provider options.
type ProviderOptions struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

// ServerConfig configures the HTTP and websocket listener.
type ServerConfig struct {
	Hostname       string   `json:"hostname,omitempty"`
	Port           int      `json:"port,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`

	// Durations use time.ParseDuration syntax ("30s", "1m").
	PingInterval string `json:"pingInterval,omitempty"`
	WriteTimeout string `json:"writeTimeout,omitempty"`

	// InboundQueue bounds how many client messages may wait while a reply streams.
	InboundQueue int `json:"inboundQueue,omitempty"`
}

// PersonaConfig selects the system directive given to new conversations.
type PersonaConfig struct {
	// File is a YAML persona or a plain-text directive.
	File      string `json:"file,omitempty"`
	Directive string `json:"directive,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// Watch reloads File when it changes on disk.
	Watch bool `json:"watch,omitempty"`
}

// RegistryConfig bounds the session registry. Zero values keep every
// session until it is deleted explicitly.
type RegistryConfig struct {
	MaxEntries    int    `json:"maxEntries,omitempty"`
	IdleTTL       string `json:"idleTTL,omitempty"`
	SweepInterval string `json:"sweepInterval,omitempty"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
}

// Model represents an LLM model.
type Model struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProviderID      string `json:"providerID"`
	ContextLength   int    `json:"contextLength"`
	MaxOutputTokens int    `json:"maxOutputTokens,omitempty"`
}
