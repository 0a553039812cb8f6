package api

import (
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/gin-gonic/gin"
)

// ZipList returns the entries of a stored zip archive
func ZipList(c *gin.Context, d *internal.Deps) {
	fileKey := c.Query("fileKey")
	if fileKey == "" {
		fail(c, apperr.New(apperr.KindValidation, "No file key provided"))
		return
	}

	entries, err := d.Zips.ListEntries(fileKey)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, entries)
}

// ZipExtract pulls one entry out of an archive and returns the new key
// it is stored under
func ZipExtract(c *gin.Context, d *internal.Deps) {
	fileKey := c.Query("fileKey")
	entryPath := c.Query("targetPath")
	if fileKey == "" || entryPath == "" {
		fail(c, apperr.New(apperr.KindValidation, "File key and target path are required"))
		return
	}

	newKey, err := d.Zips.ExtractEntry(fileKey, entryPath)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, newKey)
}

type zipCompressRequest struct {
	FileKeys            []string `json:"fileKeys" binding:"required"`
	ZipName             string   `json:"zipName"`
	KeepFolderStructure bool     `json:"keepFolderStructure"`
}

// ZipCompress packs stored files into a fresh archive
func ZipCompress(c *gin.Context, d *internal.Deps) {
	var req zipCompressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, "Malformed compress request", err))
		return
	}

	newKey, err := d.Zips.Compress(req.FileKeys, req.ZipName, req.KeepFolderStructure)
	if err != nil {
		fail(c, err)
		return
	}

	ok(c, newKey)
}
