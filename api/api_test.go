package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/db"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/service"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/util"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *internal.Deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	viper.Set("upload.max_size", int64(10<<20))

	root := storage.Root{Dir: t.TempDir()}
	require.NoError(t, root.EnsureLayout())

	conn, err := db.Open(root.Data())
	require.NoError(t, err)

	ix := storage.NewIndex(conn, root)

	sessions := service.NewSessionStore(time.Minute)
	t.Cleanup(sessions.Close)

	d := &internal.Deps{
		DB:       conn,
		Index:    ix,
		Uploads:  service.NewUploadCoordinator(ix, sessions, nil),
		Converts: service.NewConvertOrchestrator(ix, nil),
		Links:    service.NewLinkService(ix),
		Zips:     service.NewZipService(ix),
	}

	r := gin.New()
	r.POST("/api/upload/init", func(c *gin.Context) { UploadInit(c, d) })
	r.GET("/api/upload/check", func(c *gin.Context) { UploadCheck(c, d) })
	r.POST("/api/upload/part", func(c *gin.Context) { UploadPart(c, d) })
	r.POST("/api/upload/complete", func(c *gin.Context) { UploadComplete(c, d) })
	r.POST("/api/upload/record", func(c *gin.Context) { UploadAddRecord(c, d) })
	r.GET("/api/files", func(c *gin.Context) { FileServe(c, d) })
	r.POST("/api/files/link", func(c *gin.Context) { LinkCreate(c, d) })
	r.GET("/api/files/zip", func(c *gin.Context) { ZipList(c, d) })
	r.POST("/api/files/zip", func(c *gin.Context) { ZipCompress(c, d) })
	r.GET("/upload/:fileKey", func(c *gin.Context) { FileServe(c, d) })

	return r, d
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var res Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	}
	return w, res
}

func uploadPart(t *testing.T, r *gin.Engine, uploadID string, part int, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("uploadId", uploadID))
	require.NoError(t, mw.WriteField("partNumber", fmt.Sprint(part)))
	fw, err := mw.CreateFormFile("file", "part")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/part", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUploadFlow_EndToEnd(t *testing.T) {
	r, _ := newTestRouter(t)

	w, res := doJSON(t, r, http.MethodPost, "/api/upload/init", gin.H{"fileName": "hello.txt"})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, res.Result)

	init := res.Data.(map[string]any)
	uploadID := init["uploadId"].(string)
	require.NotEmpty(t, uploadID)
	require.Equal(t, "hello.txt", init["fileName"])

	require.Equal(t, http.StatusOK, uploadPart(t, r, uploadID, 0, "hello ").Code)
	require.Equal(t, http.StatusOK, uploadPart(t, r, uploadID, 1, "world").Code)

	w, res = doJSON(t, r, http.MethodGet, "/api/upload/check?uploadId="+uploadID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	check := res.Data.(map[string]any)
	require.Equal(t, []any{float64(0), float64(1)}, check["parts"])

	w, res = doJSON(t, r, http.MethodPost, "/api/upload/complete", gin.H{"uploadId": uploadID})
	require.Equal(t, http.StatusOK, w.Code)
	done := res.Data.(map[string]any)
	fileKey := done["fileKey"].(string)
	require.True(t, util.IsFileKey(fileKey))

	// Served by path segment
	req := httptest.NewRequest(http.MethodGet, "/upload/"+fileKey, nil)
	serve := httptest.NewRecorder()
	r.ServeHTTP(serve, req)
	require.Equal(t, http.StatusOK, serve.Code)
	require.Equal(t, "hello world", serve.Body.String())

	// And by query parameter
	req = httptest.NewRequest(http.MethodGet, "/api/files?file="+fileKey, nil)
	serve = httptest.NewRecorder()
	r.ServeHTTP(serve, req)
	require.Equal(t, http.StatusOK, serve.Code)
	require.Equal(t, "hello world", serve.Body.String())
}

func TestUploadInit_Validation(t *testing.T) {
	r, _ := newTestRouter(t)

	w, res := doJSON(t, r, http.MethodPost, "/api/upload/init", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, res.Result)
	require.NotEmpty(t, res.Message)

	w, _ = doJSON(t, r, http.MethodPost, "/api/upload/init", gin.H{"fileName": "../escape.txt"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/upload/init", gin.H{"fileName": "a.txt", "conflictStrategy": "merge"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadCheck_UnknownSession(t *testing.T) {
	r, _ := newTestRouter(t)

	w, res := doJSON(t, r, http.MethodGet, "/api/upload/check?uploadId=nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.False(t, res.Result)
}

func TestFileServe_UnknownKeyUniformNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	// A well-formed but unknown key and a malformed key answer identically
	for _, key := range []string{util.NewFileKey("ghost.txt"), "not-a-key"} {
		w, res := doJSON(t, r, http.MethodGet, "/api/files?file="+key, nil)
		require.Equal(t, http.StatusNotFound, w.Code, "key %q", key)
		require.Equal(t, "File not found", res.Message)
	}
}

func TestFileServe_EscapesDispositionFilename(t *testing.T) {
	r, d := newTestRouter(t)

	name := `he"llo.txt`
	rel := filepath.Join("files", "blob")
	require.NoError(t, os.WriteFile(filepath.Join(d.Index.Root.Dir, rel), []byte("x"), 0o644))
	key := util.NewFileKey(name)
	require.NoError(t, d.Index.PutDiskFile(key, rel))

	req := httptest.NewRequest(http.MethodGet, "/api/files?file="+url.QueryEscape(key), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t,
		mime.FormatMediaType("inline", map[string]string{"filename": name}),
		w.Header().Get("Content-Disposition"))
}

func TestLinkCreate_RejectsNonIntegerExpiry(t *testing.T) {
	r, d := newTestRouter(t)

	src := filepath.Join(d.Index.Root.Files(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	w, _ := doJSON(t, r, http.MethodPost, "/api/files/link",
		gin.H{"filePath": src, "expirationMinutes": 1.5})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, res := doJSON(t, r, http.MethodPost, "/api/files/link",
		gin.H{"filePath": src, "expirationMinutes": 10})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, util.IsFileKey(res.Data.(string)))
}

func TestZipEndpoints_CompressAndList(t *testing.T) {
	r, d := newTestRouter(t)

	rel := filepath.Join("files", "a.txt")
	require.NoError(t, os.WriteFile(filepath.Join(d.Index.Root.Dir, rel), []byte("alpha"), 0o644))
	key := util.NewFileKey("a.txt")
	require.NoError(t, d.Index.PutDiskFile(key, rel))

	w, res := doJSON(t, r, http.MethodPost, "/api/files/zip", gin.H{"fileKeys": []string{key}, "zipName": "bundle"})
	require.Equal(t, http.StatusOK, w.Code)
	zipKey := res.Data.(string)

	w, res = doJSON(t, r, http.MethodGet, "/api/files/zip?fileKey="+zipKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := res.Data.([]any)
	require.Len(t, entries, 1)
	require.Equal(t, "a.txt", entries[0].(map[string]any)["path"])
}
