// Package provider adapts LLM backends to a single streaming interface
// built on the Eino framework.
//
// Every backend is an Eino ToolCallingChatModel behind the Provider
// interface. CreateCompletion streams *schema.Message chunks and passes
// temperature, max tokens, stop words and model name as Eino options.
//
// Supported backends:
//
//   - Gemini, through Google's OpenAI-compatible endpoint (eino-ext openai)
//   - OpenAI and OpenAI-compatible servers (eino-ext openai)
//   - Anthropic Claude (eino-ext claude)
//   - Volcengine ARK (eino-ext ark)
//
// Wrap exposes any other chat model, such as an in-process fake, as a Provider:
//
//	p := provider.Wrap("local", "Local", chatModel, []types.Model{{ID: "echo"}})
//	reg := provider.NewRegistry(nil)
//	reg.Register(p)
//
// InitializeProviders registers each backend whose API key is configured:
//
//	reg, err := provider.InitializeProviders(ctx, cfg)
//	if err != nil {
//	    // some providers failed; reg still holds the rest
//	}
//	p, modelID, err := reg.Resolve("gemini/gemini-2.5-flash")
package provider
