package api

import (
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FileServe streams a file by key. Keys arrive either as the path
// segment of /upload/{fileKey} or as a ?file= query parameter. With
// ?ac=1 the file is converted to its preview format first.
func FileServe(c *gin.Context, d *internal.Deps) {
	fileKey := c.Param("fileKey")
	if fileKey == "" {
		fileKey = c.Query("file")
	}
	if fileKey == "" {
		fail(c, apperr.New(apperr.KindValidation, "No file key provided"))
		return
	}

	if c.Query("ac") == "1" {
		serveConverted(c, d, fileKey)
		return
	}

	p, err := d.Index.Resolve(fileKey)
	if err != nil {
		fail(c, err)
		return
	}

	if _, err := os.Stat(p); err != nil {
		serveRemote(c, d, fileKey, p)
		return
	}

	serveLocal(c, p, util.FileKeyName(fileKey))
}

// serveRemote handles files whose local bytes were already mirrored and
// dropped: the client gets redirected to the provider. When the remote
// does not hold the bytes either, the record is referentially dead and
// gets removed.
func serveRemote(c *gin.Context, d *internal.Deps, fileKey, p string) {
	if d.Sync == nil {
		fail(c, apperr.New(apperr.KindNotFound, "File not found"))
		return
	}

	name, err := d.Index.Root.Rel(p)
	if err != nil {
		fail(c, apperr.New(apperr.KindNotFound, "File not found"))
		return
	}

	exists, err := d.Sync.Provider.Exists(c.Request.Context(), name)
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindExternalFailure, "Cloud storage check failed", err))
		return
	}
	if !exists {
		if err := d.Index.DeleteDiskFile(fileKey); err != nil {
			zap.L().Warn("Failed to drop dead file record", zap.String("key", fileKey), zap.Error(err))
		}
		fail(c, apperr.New(apperr.KindNotFound, "File not found"))
		return
	}

	c.Redirect(http.StatusFound, d.Sync.Provider.URL(name))
}

// serveConverted converts on access: videos become mp4, documents pdf
func serveConverted(c *gin.Context, d *internal.Deps, fileKey string) {
	target := "pdf"
	if i := strings.LastIndex(fileKey, "."); i >= 0 {
		ext := strings.ToLower(fileKey[i+1:])
		for _, v := range []string{"avi", "mov", "mkv", "wmv", "flv", "m4v", "mpg", "mpeg", "webm"} {
			if ext == v {
				target = "mp4"
				break
			}
		}
	}

	p, err := d.Converts.GetOrCreate(c.Request.Context(), fileKey, target, false)
	if err != nil {
		fail(c, err)
		return
	}

	serveLocal(c, p, util.FileKeyName(fileKey)+"."+target)
}

func serveLocal(c *gin.Context, p, name string) {
	if mtype, err := mimetype.DetectFile(p); err == nil {
		c.Header("Content-Type", mtype.String())
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	c.File(p)
}
