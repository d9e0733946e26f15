package dispatch

import "strings"

// ExtractName pulls a user name out of free-text memory by locating the
// phrase "name is" and taking the following token. Heuristic, best-effort:
// a miss returns "". Kept deliberately simple; the cached name is never
// authoritative.
func ExtractName(memoryText string) string {
	lower := strings.ToLower(memoryText)
	idx := strings.Index(lower, "name is")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(memoryText[idx+len("name is"):])
	if rest == "" {
		return ""
	}
	token := strings.Fields(rest)[0]
	token = strings.TrimRight(token, ".?!,")
	if token == "" {
		return ""
	}
	return capitalize(strings.ToLower(token))
}
