package chat

// TitleMaxRunes is the longest prompt used verbatim as a title.
const TitleMaxRunes = 30

// DeriveTitle turns the first prompt of a session into its sidebar label.
func DeriveTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > TitleMaxRunes {
		return string(runes[:TitleMaxRunes]) + "..."
	}
	return prompt
}
