// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", parseLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// parseLanguage maps the first Accept-Language entry, e.g.
// "es-MX,es;q=0.9,en;q=0.8", to a supported locale.
func parseLanguage(header string) string {
	if header == "" {
		return "en"
	}
	first := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
	primary := strings.ToLower(strings.SplitN(strings.ReplaceAll(first, "_", "-"), "-", 2)[0])
	switch primary {
	case "es":
		return "es"
	default:
		return "en"
	}
}
