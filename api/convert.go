package api

import (
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/gin-gonic/gin"
)

type convertRequest struct {
	URL          string `json:"url" binding:"required"`
	TargetType   string `json:"targetType" binding:"required"`
	ForceUpdated bool   `json:"forceUpdated"`
}

// ConvertFile converts a source (file key or external URL) to the
// requested target format and streams the result
func ConvertFile(c *gin.Context, d *internal.Deps) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Malformed convert request", err))
		return
	}

	p, err := d.Converts.GetOrCreate(c.Request.Context(), req.URL, req.TargetType, req.ForceUpdated)
	if err != nil {
		fail(c, err)
		return
	}

	serveLocal(c, p, util.URLDerivedID(req.URL)+"."+req.TargetType)
}

// ConvertibleExtensions reports which source extensions the installed
// converter backends can currently handle
func ConvertibleExtensions(c *gin.Context, d *internal.Deps) {
	ok(c, d.Converts.ConvertibleExtensions())
}
