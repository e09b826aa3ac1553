package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Middleware resolves the bearer token on each request and stores the user
// on the request context. Requests without a usable identity proceed
// anonymously; operations that require authentication reject them
// themselves.
func Middleware(provider Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := TokenFromRequest(c.Request)
		if err != nil {
			c.Next()
			return
		}
		u, err := provider.Verify(c.Request.Context(), token)
		if err != nil {
			log.Warn().Err(err).Msg("rejected bearer token")
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
		c.Next()
	}
}
