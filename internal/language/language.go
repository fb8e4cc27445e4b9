package language

import (
	"fmt"
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ParseTag validates a BCP-47 locale tag such as "am-ET".
func ParseTag(tag string) (xlang.Tag, error) {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return xlang.Und, fmt.Errorf("empty language tag")
	}
	parsed, err := xlang.Parse(trimmed)
	if err != nil {
		return xlang.Und, fmt.Errorf("parse language tag %q: %w", trimmed, err)
	}
	return parsed, nil
}

// Base returns the primary language subtag of a locale: "am" for "am-ET".
// Unparseable input yields "".
func Base(tag string) string {
	parsed, err := ParseTag(tag)
	if err != nil {
		return ""
	}
	base, conf := parsed.Base()
	if conf == xlang.No {
		return ""
	}
	return base.String()
}

// DisplayName returns the English name of the locale's language, "Amharic"
// for "am-ET". Unparseable input yields "".
func DisplayName(tag string) string {
	parsed, err := ParseTag(tag)
	if err != nil {
		return ""
	}
	base, conf := parsed.Base()
	if conf == xlang.No {
		return ""
	}
	return display.English.Languages().Name(base)
}

// VoiceLocale extracts the locale prefix of an Azure neural voice name:
// "am-ET-AmehaNeural" yields "am-ET". Names without a parseable locale
// prefix yield "".
func VoiceLocale(voice string) string {
	parts := strings.SplitN(strings.TrimSpace(voice), "-", 3)
	if len(parts) < 3 {
		return ""
	}
	prefix := parts[0] + "-" + parts[1]
	if _, err := ParseTag(prefix); err != nil {
		return ""
	}
	return prefix
}

// VoiceMatches reports whether the voice name embeds the given narration
// locale. Tags are compared in canonical form, so case differences between
// the two settings do not matter.
func VoiceMatches(locale, voice string) bool {
	want, err := ParseTag(locale)
	if err != nil {
		return false
	}
	prefix := VoiceLocale(voice)
	if prefix == "" {
		return false
	}
	got, err := ParseTag(prefix)
	if err != nil {
		return false
	}
	return got == want
}
