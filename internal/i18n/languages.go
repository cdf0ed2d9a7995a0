package i18n

var languageNames = map[string]string{
	"en": "English",
	"ru": "Russian",
}

// GetLanguagesList returns the supported language codes.
func GetLanguagesList() []string {
	codes := make([]string, 0, len(languageNames))
	for code := range languageNames {
		codes = append(codes, code)
	}
	return codes
}
