package recognition

import (
	"strings"

	"golang.org/x/text/language"
)

// Undetermined is the ISO 639-2 "und" code. Requesting it accepts any
// configured language.
const Undetermined = "und"

// LanguageSource supplies the currently configured language.
type LanguageSource interface {
	Language() string
}

// StaticLanguage is a LanguageSource that never changes.
type StaticLanguage string

// Language returns the tag itself.
func (s StaticLanguage) Language() string { return string(s) }

// languageAccepted reports whether a request for the requested tag can be
// served while configured is active. Only base language subtags are compared,
// so "en-GB" is accepted against "en-US".
func languageAccepted(requested, configured string) bool {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, Undetermined) {
		return true
	}
	return baseLanguage(requested) == baseLanguage(configured)
}

// baseLanguage returns the primary language subtag of tag, lower-cased. The raw
// subtag is used so that no likely language is inferred for "und-XX".
func baseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if t, err := language.Parse(tag); err == nil {
		base, _, _ := t.Raw()
		return base.String()
	}
	head, _, _ := strings.Cut(strings.ReplaceAll(tag, "_", "-"), "-")
	return strings.ToLower(head)
}
