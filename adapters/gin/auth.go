package wallgin

import (
	"context"
	"strings"

	"github.com/PaulFidika/wallkit/adapters/ginutil"
	jwtkit "github.com/PaulFidika/wallkit/jwt"
	"github.com/PaulFidika/wallkit/logging"
	"github.com/gin-gonic/gin"
)

const claimsKey = "auth.claims"

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (jwtkit.Claims, error)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// caller under "auth.user_id" and "auth.claims".
func AuthRequired(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			ginutil.Unauthorized(c, "Authentication required")
			return
		}
		claims, err := v.Verify(c.Request.Context(), raw)
		if err != nil {
			logging.FromGin(c).WithError(err).Debug("bearer token rejected")
			ginutil.Unauthorized(c, "Invalid or expired token")
			return
		}
		c.Set("auth.user_id", claims.UserID)
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, ok := ClaimsFromGin(c)
		if !ok || !cl.HasRole("admin") {
			ginutil.Forbidden(c, "forbidden", "Admin access required")
			return
		}
		c.Next()
	}
}

// ClaimsFromGin returns the verified claims set by AuthRequired.
func ClaimsFromGin(c *gin.Context) (jwtkit.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return jwtkit.Claims{}, false
	}
	cl, ok := v.(jwtkit.Claims)
	return cl, ok
}

func bearerToken(h string) string {
	h = strings.TrimSpace(h)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
