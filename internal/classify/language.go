package classify

import (
	"strings"
	"unicode"
)

// Supported reply languages.
const (
	LangEnglish = "en"
	LangMalay   = "ms"
	LangChinese = "zh"
)

var malayMarkers = map[string]bool{
	"saya": true, "boleh": true, "tak": true, "tidak": true, "ada": true,
	"bilik": true, "berapa": true, "harga": true, "nak": true, "mahu": true,
	"bila": true, "mana": true, "terima": true, "kasih": true, "apa": true,
	"tolong": true, "encik": true, "cik": true, "sudah": true, "dah": true,
	"sampai": true, "malam": true, "esok": true, "hari": true,
}

// DetectLanguage guesses en, ms or zh from script and a few Malay function
// words. Anything else is English.
func DetectLanguage(text string) string {
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			return LangChinese
		}
	}
	hits := 0
	for _, w := range strings.Fields(normalize(text)) {
		if malayMarkers[w] {
			hits++
		}
	}
	if hits >= 2 || (hits == 1 && len(strings.Fields(text)) <= 3) {
		return LangMalay
	}
	return LangEnglish
}

// NormalizeLanguage maps the names models tend to produce onto the supported
// codes. Unsupported values return "".
func NormalizeLanguage(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "eng", "english":
		return LangEnglish
	case "ms", "my", "bm", "malay", "bahasa", "bahasa melayu", "melayu":
		return LangMalay
	case "zh", "cn", "zh-cn", "chinese", "mandarin":
		return LangChinese
	default:
		return ""
	}
}
