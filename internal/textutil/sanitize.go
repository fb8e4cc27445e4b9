package textutil

import "strings"

// Source titles can approach the YouTube 100-character limit; cap derived
// file names well short of filesystem limits once suffixes are added.
const maxFileNameRunes = 100

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName makes a video title usable as a file name. Slashes,
// backslashes, colons, and asterisks become dashes; other unsafe characters
// are removed; the result is trimmed and bounded to 100 runes.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(fileNameReplacer.Replace(strings.TrimSpace(name)))
	runes := []rune(name)
	if len(runes) > maxFileNameRunes {
		name = strings.TrimSpace(string(runes[:maxFileNameRunes]))
	}
	return name
}
