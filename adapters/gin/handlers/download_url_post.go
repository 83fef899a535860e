package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/PaulFidika/wallkit/adapters/ginutil"
	core "github.com/PaulFidika/wallkit/core"
	"github.com/gin-gonic/gin"
)

type downloadURLRequest struct {
	ResourceID string `json:"resource_id"`
	// wallpaper_id is accepted from older clients.
	WallpaperID string `json:"wallpaper_id"`
	Resolution  string `json:"resolution"`
}

type downloadURLResponse struct {
	SignedURL     string `json:"signed_url"`
	DownloadURL   string `json:"download_url"`
	ExpiresAt     int64  `json:"expires_at"`
	ResourceTitle string `json:"resource_title"`
	Resolution    string `json:"resolution"`
}

// HandleDownloadURLPOST issues a signed, expiring download URL for the caller.
func HandleDownloadURLPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLDownloadURL) {
			ginutil.TooMany(c)
			return
		}
		var req downloadURLRequest
		// An empty body is an empty request; the service reports the missing id.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			ginutil.BadRequest(c, "invalid_request", "Request body must be JSON")
			return
		}
		resourceID := req.ResourceID
		if resourceID == "" {
			resourceID = req.WallpaperID
		}

		grant, err := svc.IssueDownloadURL(c.Request.Context(), c.GetString("auth.user_id"), core.Request{
			ResourceID: resourceID,
			Resolution: req.Resolution,
			ClientIP:   c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
		if err != nil {
			ginutil.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": downloadURLResponse{
			SignedURL:     grant.SignedURL,
			DownloadURL:   grant.DownloadURL,
			ExpiresAt:     grant.ExpiresAt.Unix(),
			ResourceTitle: grant.ResourceTitle,
			Resolution:    grant.Resolution.String(),
		}})
	}
}
