package handlers

import (
	"net/http"
	"strconv"

	"github.com/PaulFidika/wallkit/adapters/ginutil"
	core "github.com/PaulFidika/wallkit/core"
	"github.com/gin-gonic/gin"
)

func HandleAdminUserDownloadsGET(admin *core.Admin, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLAdmin) {
			ginutil.TooMany(c)
			return
		}
		id := c.Param("user_id")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		size, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
		page, size = core.NormalizePage(page, size)
		items, err := admin.UserDownloads(c.Request.Context(), id, page, size)
		if err != nil {
			ginutil.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items, "page": page, "page_size": size})
	}
}
