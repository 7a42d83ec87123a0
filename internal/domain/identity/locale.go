package identity

import (
	"github.com/openground/backend/internal/domain/shared"
	"golang.org/x/text/language"
)

// DefaultLocale is used for new accounts and unmatched requests
const DefaultLocale = "en"

// SupportedLocales lists the UI languages OpenGround ships, base first.
var SupportedLocales = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
}

var localeMatcher = language.NewMatcher(SupportedLocales)

// NormalizeLocale validates a BCP-47 tag and reduces it to a supported base language
func NormalizeLocale(raw string) (string, error) {
	tag, err := language.Parse(raw)
	if err != nil {
		return "", shared.NewDomainError("INVALID_LOCALE", "Locale must be a valid language tag")
	}
	_, idx, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return "", shared.NewDomainError("UNSUPPORTED_LOCALE", "Locale is not supported")
	}
	base, _ := SupportedLocales[idx].Base()
	return base.String(), nil
}

// MatchLocale picks the best supported locale for an Accept-Language header value
func MatchLocale(acceptLanguage string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, confidence := localeMatcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}
	base, _ := SupportedLocales[idx].Base()
	return base.String()
}
