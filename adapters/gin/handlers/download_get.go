package handlers

import (
	"net/http"

	"github.com/PaulFidika/wallkit/adapters/ginutil"
	core "github.com/PaulFidika/wallkit/core"
	"github.com/gin-gonic/gin"
)

// HandleDownloadGET redeems a signed URL by redirecting to the wallpaper source.
func HandleDownloadGET(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLDownloadRedeem) {
			ginutil.TooMany(c)
			return
		}
		source, err := svc.Redeem(c.Request.Context(), c.Param("resource_id"), c.Request.URL.Query())
		if err != nil {
			ginutil.Error(c, err)
			return
		}
		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, source)
	}
}
