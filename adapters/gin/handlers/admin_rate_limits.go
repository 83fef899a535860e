package handlers

import (
	"net/http"
	"time"

	"github.com/PaulFidika/wallkit/adapters/ginutil"
	core "github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/ratelimit"
	"github.com/gin-gonic/gin"
)

type rateLimitSettingsDTO struct {
	Limit         int        `json:"limit"`
	WindowSeconds int64      `json:"window_seconds"`
	FailClosed    bool       `json:"fail_closed"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

func toDTO(s ratelimit.Settings) rateLimitSettingsDTO {
	return rateLimitSettingsDTO{
		Limit:         s.Limit,
		WindowSeconds: int64(s.Window / time.Second),
		FailClosed:    s.FailClosed,
		UpdatedAt:     s.UpdatedAt,
	}
}

func HandleAdminRateLimitsGET(admin *core.Admin, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdmin) {
			ginutil.TooMany(c)
			return
		}
		s, err := admin.RateLimitSettings(c.Request.Context())
		if err != nil {
			ginutil.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": toDTO(s)})
	}
}

func HandleAdminRateLimitsPUT(admin *core.Admin, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdmin) {
			ginutil.TooMany(c)
			return
		}
		var req rateLimitSettingsDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			ginutil.BadRequest(c, "invalid_request", "Request body must be JSON")
			return
		}
		saved, err := admin.UpdateRateLimitSettings(c.Request.Context(), ratelimit.Settings{
			Limit:      req.Limit,
			Window:     time.Duration(req.WindowSeconds) * time.Second,
			FailClosed: req.FailClosed,
		})
		if err != nil {
			ginutil.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": toDTO(saved)})
	}
}
