package middleware

import (
	"errors"
	"net/http"

	"offerwall/pkg/errutil"
	"offerwall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error a handler attached with c.Error. BaseErrors
// keep their status, anything else becomes a 500 with a generic message.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var base errutil.BaseError
		if !errors.As(err, &base) {
			base = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal server error", Err: err}
		}

		status := base.Code.HTTPStatus()
		if status >= http.StatusInternalServerError {
			logger.Ctx(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.String("request_id", GetRequestID(c)),
				zap.Error(err),
			)
		}

		c.JSON(status, base.JSON())
	}
}
