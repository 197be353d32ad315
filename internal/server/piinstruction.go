package server

// Per-model-family system instructions telling the upstream model to
// reproduce placeholder tokens verbatim rather than substitute plausible
// values in their place. Keyed by model-name prefix; "default" is the
// fallback for anything that doesn't match a more specific key.
var piiInstructions = map[string]string{
	"claude": "PRIVACY TOKENS: This request contains privacy-preserving placeholders," +
		" each a short run of characters wrapped in private-use-area markers." +
		" You MUST reproduce every such placeholder EXACTLY as written in your" +
		" response. Do NOT replace them with example values, email addresses," +
		" phone numbers, names, or any other substitute. Treat them as opaque" +
		" identifiers that must pass through unchanged.",
	"gpt": "PRIVACY TOKENS: This request contains privacy-preserving placeholders," +
		" each a short run of characters wrapped in private-use-area markers." +
		" Reproduce every such placeholder verbatim in your response. Do not" +
		" substitute them with example values.",
	"default": "PRIVACY TOKENS: This request contains privacy-preserving placeholders," +
		" each a short run of characters wrapped in private-use-area markers." +
		" Reproduce every such placeholder verbatim in your response. Do not" +
		" substitute them with example values.",
}

// resolvePIIInstruction returns the configured instruction for the given
// model string using prefix matching. "claude-sonnet-4-6" matches key
// "claude". Falls back to "default", then to empty if neither exists.
func resolvePIIInstruction(model string) string {
	for key, instruction := range piiInstructions {
		if key == "default" {
			continue
		}
		if len(model) >= len(key) && model[:len(key)] == key {
			return instruction
		}
	}
	return piiInstructions["default"]
}

// injectPIIInstruction appends the per-model-family instruction to the
// request's system prompt. It handles two shapes:
//
//   - Anthropic messages API: top-level "system" field (string or content-block array)
//   - OpenAI-compatible API:  first "messages" entry with role "system"
//
// If the body has no system prompt yet, an Anthropic body gets a top-level
// "system" field and an OpenAI body with a "messages" array gets a new
// leading system-role message; any other body is left unchanged.
func injectPIIInstruction(source string, body map[string]any) {
	model, _ := body["model"].(string)
	instruction := resolvePIIInstruction(model)
	if instruction == "" {
		return
	}

	if sys, ok := body["system"]; ok {
		switch s := sys.(type) {
		case string:
			if s == "" {
				body["system"] = instruction
			} else {
				body["system"] = s + "\n\n" + instruction
			}
			return
		case []any:
			body["system"] = append(s, map[string]any{"type": "text", "text": instruction})
			return
		}
	}

	if source == "anthropic" {
		body["system"] = instruction
		return
	}

	if msgs, ok := body["messages"].([]any); ok {
		for _, m := range msgs {
			if msg, ok := m.(map[string]any); ok && msg["role"] == "system" {
				if content, ok := msg["content"].(string); ok {
					if content == "" {
						msg["content"] = instruction
					} else {
						msg["content"] = content + "\n\n" + instruction
					}
				}
				return
			}
		}
		systemMsg := map[string]any{"role": "system", "content": instruction}
		body["messages"] = append([]any{systemMsg}, msgs...)
		return
	}
}
