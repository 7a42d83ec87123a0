package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/openground/backend/internal/domain/identity"
)

// LocaleKey is the gin context key holding the negotiated locale
const LocaleKey = "locale"

// Locale negotiates the response language from the lang query parameter or
// Accept-Language and echoes it in Content-Language.
func Locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		locale := ""
		if q := c.Query("lang"); q != "" {
			if l, err := identity.NormalizeLocale(q); err == nil {
				locale = l
			}
		}
		if locale == "" {
			locale = identity.MatchLocale(c.GetHeader("Accept-Language"))
		}
		c.Set(LocaleKey, locale)
		c.Header("Content-Language", locale)
		c.Next()
	}
}

// GetLocale returns the negotiated locale, falling back to the default
func GetLocale(c *gin.Context) string {
	if l := c.GetString(LocaleKey); l != "" {
		return l
	}
	return identity.DefaultLocale
}
