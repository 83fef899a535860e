// Package wallgin mounts wallkit's HTTP surface on a gin engine.
package wallgin

import (
	"net/http"

	"github.com/PaulFidika/wallkit/adapters/gin/handlers"
	"github.com/PaulFidika/wallkit/adapters/ginutil"
	"github.com/PaulFidika/wallkit/core"
	"github.com/gin-gonic/gin"
)

// Routes are the dependencies of the HTTP surface.
type Routes struct {
	Service  *core.Service
	Admin    *core.Admin
	Verifier TokenVerifier
	// Throttle limits requests per client IP. Nil disables throttling.
	Throttle ginutil.RateLimiter
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

// Register mounts every route on r.
func (rt Routes) Register(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if rt.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rt.Metrics))
	}

	issue := handlers.HandleDownloadURLPOST(rt.Service, rt.Throttle)
	auth := AuthRequired(rt.Verifier)
	r.POST("/functions/v1/download-url", auth, issue)
	r.POST("/v1/downloads/url", auth, issue)

	r.GET("/download/:resource_id", handlers.HandleDownloadGET(rt.Service, rt.Throttle))

	if rt.Admin != nil {
		admin := r.Group("/v1/admin", auth, AdminRequired())
		admin.GET("/rate-limits/download", handlers.HandleAdminRateLimitsGET(rt.Admin, rt.Throttle))
		admin.PUT("/rate-limits/download", handlers.HandleAdminRateLimitsPUT(rt.Admin, rt.Throttle))
		admin.GET("/users/:user_id/downloads", handlers.HandleAdminUserDownloadsGET(rt.Admin, rt.Throttle))
	}
}
