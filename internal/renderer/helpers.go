package renderer

// maxCenterRunes keeps the center label inside the center disc
const maxCenterRunes = 6

// truncate shortens s to at most maxLen runes, marking the cut with an ellipsis
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
