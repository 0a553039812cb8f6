package api

import (
	"net/http"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the uniform envelope every endpoint answers with
type Response struct {
	Result    bool   `json:"result"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"requestID,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Result:    true,
		Data:      data,
		RequestID: c.GetString("requestID"),
	})
}

// fail maps an error's taxonomy kind to a status code and surfaces the
// recoverable ones verbatim. Internal errors only ever reach the client
// masked.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindResourceExhausted:
		status = http.StatusServiceUnavailable
	case apperr.KindExternalFailure:
		status = http.StatusBadGateway
	default:
		zap.L().Error("Request failed",
			zap.String("requestID", c.GetString("requestID")),
			zap.Error(err))
	}

	c.JSON(status, Response{
		Result:    false,
		Message:   apperr.Message(err),
		RequestID: c.GetString("requestID"),
	})
}
