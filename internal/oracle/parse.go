package oracle

import "strings"

// stripFences removes a surrounding markdown code fence from model output.
// Models routinely wrap the requested JSON in ```json fences even when told
// not to; parsing must tolerate both fenced and bare payloads.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json")
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
