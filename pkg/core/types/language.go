package types

import "strings"

// Language is a guide display language.
type Language struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	VoiceCode string `json:"voice_code"`
}

// Languages lists the supported guide languages. The first entry is the default.
var Languages = []Language{
	{Code: "en", Name: "English", VoiceCode: "en-US"},
	{Code: "es", Name: "Español", VoiceCode: "es-ES"},
	{Code: "fr", Name: "Français", VoiceCode: "fr-FR"},
	{Code: "de", Name: "Deutsch", VoiceCode: "de-DE"},
	{Code: "zh", Name: "中文", VoiceCode: "zh-CN"},
	{Code: "ja", Name: "日本語", VoiceCode: "ja-JP"},
}

// DefaultLanguage is the language steps are authored in.
var DefaultLanguage = Languages[0]

// IsDefault reports whether no translation is needed for l.
func (l Language) IsDefault() bool {
	return l.Code == "" || l.Code == DefaultLanguage.Code
}

// LookupLanguage finds a language by code or name, case-insensitively.
func LookupLanguage(s string) (Language, bool) {
	s = strings.TrimSpace(s)
	for _, l := range Languages {
		if strings.EqualFold(l.Code, s) || strings.EqualFold(l.Name, s) || strings.EqualFold(l.VoiceCode, s) {
			return l, true
		}
	}
	return Language{}, false
}
