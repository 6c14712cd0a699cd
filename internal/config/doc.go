// Package config loads the chat relay configuration.
//
// Sources are merged in priority order, later sources overriding earlier ones:
//
//  1. Built-in defaults (see Default)
//  2. Global config: $XDG_CONFIG_HOME/chatrelay/chatrelay.json(c)
//  3. Project config: <directory>/chatrelay.json(c)
//  4. The file named by CHATRELAY_CONFIG
//  5. Inline JSON in CHATRELAY_CONFIG_CONTENT
//  6. Environment variables
//
// Files may be JSON or JSONC; comments are stripped with tidwall/jsonc.
// String values support {env:VAR_NAME} and {file:path} placeholders, where
// relative file paths resolve against the config file's directory:
//
//	{
//	  "model": "gemini/gemini-2.5-flash",
//	  "provider": {
//	    "gemini": { "apiKey": "{env:GEMINI_API_KEY}" }
//	  },
//	  "persona": { "directive": "{file:persona.txt}" }
//	}
//
// LoadEnv reads .env files with godotenv before Load runs, so API keys kept
// in a .env file next to the binary are picked up by the environment overrides:
//   - GEMINI_API_KEY or GOOGLE_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, ARK_API_KEY
//   - CHATRELAY_MODEL, CHATRELAY_PORT, CHATRELAY_LOG_LEVEL, CHATRELAY_PERSONA_FILE
package config
