package api

import (
	"strconv"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/service"
	"github.com/Edric-Li/forguncy-arsenal-sub000/validators"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type uploadInitRequest struct {
	FileName         string `json:"fileName" binding:"required"`
	Hash             string `json:"hash"`
	Folder           string `json:"folder"`
	ContentType      string `json:"contentType"`
	Size             int64  `json:"size"`
	ConflictStrategy string `json:"conflictStrategy"`
}

// UploadInit opens a new upload session and returns the upload id plus
// the name the file is expected to land under
func UploadInit(c *gin.Context, d *internal.Deps) {
	var req uploadInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Malformed init request", err))
		return
	}

	if err := validators.DisplayNameValidator(req.FileName); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err.Error(), err))
		return
	}

	strategy := service.ConflictStrategy(req.ConflictStrategy)
	if req.ConflictStrategy == "" {
		strategy = service.ConflictRename
	}

	res, err := d.Uploads.Init(service.InitRequest{
		DisplayName:  req.FileName,
		ContentHash:  req.Hash,
		TargetFolder: req.Folder,
		ContentType:  req.ContentType,
		Size:         req.Size,
		Strategy:     strategy,
		Uploader:     c.GetString("userID"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, res)
}

// UploadCheck reports whether the session's hash already matches stored
// content and which parts are staged
func UploadCheck(c *gin.Context, d *internal.Deps) {
	uploadID := c.Query("uploadId")
	if uploadID == "" {
		fail(c, apperr.New(apperr.KindValidation, "No upload id provided"))
		return
	}

	res, err := d.Uploads.CheckInfo(uploadID)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, res)
}

// UploadPart stages one part of a chunked upload
func UploadPart(c *gin.Context, d *internal.Deps) {
	uploadID := c.PostForm("uploadId")
	if uploadID == "" {
		fail(c, apperr.New(apperr.KindValidation, "No upload id provided"))
		return
	}

	part, err := strconv.Atoi(c.PostForm("partNumber"))
	if err != nil {
		fail(c, apperr.New(apperr.KindValidation, "Part number must be an integer"))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "No file provided", err))
		return
	}
	if err := validators.PartValidator(fh); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err.Error(), err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		zap.L().Error("Failed to open multipart file", zap.Error(err))
		fail(c, err)
		return
	}
	defer f.Close()

	if err := d.Uploads.UploadPart(uploadID, part, f); err != nil {
		fail(c, err)
		return
	}

	ok(c, nil)
}

// UploadComplete merges the staged parts and indexes the result
func UploadComplete(c *gin.Context, d *internal.Deps) {
	var req struct {
		UploadID string `json:"uploadId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "No upload id provided", err))
		return
	}

	res, err := d.Uploads.Complete(req.UploadID)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, res)
}

// UploadAddRecord is the instant-upload endpoint: it links a fresh key
// to content already stored under the session's hash
func UploadAddRecord(c *gin.Context, d *internal.Deps) {
	var req struct {
		UploadID string `json:"uploadId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "No upload id provided", err))
		return
	}

	fileKey, err := d.Uploads.AddRecord(req.UploadID)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, fileKey)
}
