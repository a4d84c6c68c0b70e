package response

import (
	"net/http"

	"optifish/pkg/errx"
	"optifish/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorBody 统一错误结构
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Success writes data as-is with 200.
func Success(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusOK, data)
}

func Created(ctx *gin.Context, data interface{}) {
	ctx.JSON(http.StatusCreated, data)
}

// Message writes {"message": msg}.
func Message(ctx *gin.Context, status int, msg string) {
	ctx.JSON(status, gin.H{"message": msg})
}

// Error maps err to its HTTP status. Internal causes are logged here and never sent to the client.
func Error(ctx *gin.Context, err error) {
	appErr := errx.From(err)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Ctx(ctx.Request.Context()).Error().Err(err).
			Str("method", ctx.Request.Method).
			Str("path", ctx.FullPath()).
			Msg("request failed")
	}
	ctx.AbortWithStatusJSON(status, ErrorBody{Error: appErr.Message, Code: appErr.Code})
}
