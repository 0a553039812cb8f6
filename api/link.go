package api

import (
	"encoding/json"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/gin-gonic/gin"
)

type linkCreateRequest struct {
	FilePath          string          `json:"filePath" binding:"required"`
	ExpirationMinutes json.RawMessage `json:"expirationMinutes"`
	CreateCopy        bool            `json:"createCopy"`
	DisplayName       string          `json:"displayName"`
}

// LinkCreate registers a time-limited download link for a server-side
// path and returns its file key
func LinkCreate(c *gin.Context, d *internal.Deps) {
	var req linkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Malformed link request", err))
		return
	}

	// The expiry must be a plain integer; floats and strings are
	// client bugs we refuse instead of rounding
	minutes := 0
	if len(req.ExpirationMinutes) > 0 {
		if err := json.Unmarshal(req.ExpirationMinutes, &minutes); err != nil {
			fail(c, apperr.New(apperr.KindValidation, "expirationMinutes must be an integer"))
			return
		}
	}

	fileKey, err := d.Links.CreateDownloadLink(req.FilePath, minutes, req.CreateCopy, req.DisplayName)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, fileKey)
}
