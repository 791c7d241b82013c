package service

// PreviewLength is the number of characters kept in a comment preview
const PreviewLength = 100

// Ellipsis is appended to truncated previews
const Ellipsis = "..."

// Preview returns the first PreviewLength characters of content, with Ellipsis appended
// when anything was cut. Characters are counted as runes.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + Ellipsis
}
