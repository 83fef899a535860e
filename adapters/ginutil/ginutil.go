// Package ginutil holds the response and throttling helpers shared by the
// gin handlers.
package ginutil

import (
	"errors"
	"net/http"

	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/logging"
	"github.com/gin-gonic/gin"
)

// Per-IP request throttle buckets.
const (
	RLDownloadURL    = "download_url"
	RLDownloadRedeem = "download_redeem"
	RLAdmin          = "admin"
)

// RateLimiter is satisfied by the memory and Redis limiters.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// AllowNamed throttles by client IP. A nil limiter, or a limiter error,
// lets the request through.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		logging.FromGin(c).WithError(err).WithField("bucket", bucket).Warn("request throttle unavailable")
		return true
	}
	return ok
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSONError aborts with {"error":{"code","message"}}.
func JSONError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

func BadRequest(c *gin.Context, code, message string) {
	JSONError(c, http.StatusBadRequest, code, message)
}

func Unauthorized(c *gin.Context, message string) {
	JSONError(c, http.StatusUnauthorized, "unauthorized", message)
}

func Forbidden(c *gin.Context, code, message string) {
	JSONError(c, http.StatusForbidden, code, message)
}

func TooMany(c *gin.Context) {
	JSONError(c, http.StatusTooManyRequests, "too_many_requests", "Too many requests, slow down")
}

func ServerErrWithLog(c *gin.Context, code string, err error, msg string) {
	logging.FromGin(c).WithError(err).Error(msg)
	JSONError(c, http.StatusInternalServerError, code, "Something went wrong, please try again")
}

// StatusFor maps a service error kind to its HTTP status.
func StatusFor(kind core.Kind) int {
	switch kind {
	case core.KindMissingInput, core.KindInvalidInput:
		return http.StatusBadRequest
	case core.KindUnauthenticated:
		return http.StatusUnauthorized
	case core.KindEntitlementRequired, core.KindRateLimited, core.KindInvalidGrant:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindResolutionUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err using its kind, code and message. Errors that are not
// *core.Error are reported as internal failures.
func Error(c *gin.Context, err error) {
	var e *core.Error
	if !errors.As(err, &e) {
		ServerErrWithLog(c, "internal_error", err, "unhandled error")
		return
	}
	status := StatusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		logging.FromGin(c).WithError(err).Error("request failed")
	}
	JSONError(c, status, e.Code, e.Message)
}
