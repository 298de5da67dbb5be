package llm

// APIFormat identifies the request/response wire shape of a provider.
type APIFormat string

const (
	// APIFormatOpenAI is the OpenAI-compatible chat-completions shape.
	APIFormatOpenAI APIFormat = "openai"
	// APIFormatWorkersAI is Cloudflare's Workers AI response envelope
	// around an OpenAI-compatible body.
	APIFormatWorkersAI APIFormat = "workers-ai"
)

// ProviderSpec holds the per-provider constants: endpoint, model,
// auth header style and message format.
type ProviderSpec struct {
	Name         string
	BaseURL      string
	ChatEndpoint string
	Model        string
	Format       APIFormat
	ExtraHeaders map[string]string
}

// URL returns the full chat-completion endpoint.
func (p ProviderSpec) URL() string {
	return p.BaseURL + p.ChatEndpoint
}

// providerSpecs is the registry of supported providers. The priority
// among them comes from configuration, not from this table.
var providerSpecs = map[string]ProviderSpec{
	"cerebras": {
		Name:         "cerebras",
		BaseURL:      "https://api.cerebras.ai",
		ChatEndpoint: "/v1/chat/completions",
		Model:        "llama-3.3-70b",
		Format:       APIFormatOpenAI,
	},
	"groq": {
		Name:         "groq",
		BaseURL:      "https://api.groq.com",
		ChatEndpoint: "/openai/v1/chat/completions",
		Model:        "llama-3.3-70b-versatile",
		Format:       APIFormatOpenAI,
	},
	"cloudflare": {
		Name:         "cloudflare",
		BaseURL:      "https://api.cloudflare.com",
		ChatEndpoint: "/client/v4/accounts/default/ai/v1/chat/completions",
		Model:        "@cf/meta/llama-3.3-70b-instruct-fp8-fast",
		Format:       APIFormatWorkersAI,
	},
}

// LookupProvider returns the spec for a provider name.
func LookupProvider(name string) (ProviderSpec, bool) {
	spec, ok := providerSpecs[name]
	return spec, ok
}

// KnownProviders returns the names of all registered providers.
func KnownProviders() []string {
	names := make([]string, 0, len(providerSpecs))
	for name := range providerSpecs {
		names = append(names, name)
	}
	return names
}
