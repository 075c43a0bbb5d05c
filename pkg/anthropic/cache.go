package anthropic

// BuildCachedSystemBlocks wraps stage instructions in a single system block
// with a 1-hour cache breakpoint. The triage prompts are identical across
// letters, so every call after the first reads the instructions from cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: "1h"},
		},
	}
}
