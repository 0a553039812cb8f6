// Package api contains all endpoints available
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/aws"
	"github.com/Edric-Li/forguncy-arsenal-sub000/db"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/service"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Edric-Li/forguncy-arsenal-sub000/pkg/middleware"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

// NewRouter assembles the engine and its HTTP surface
func NewRouter() (*gin.Engine, *internal.Deps, error) {
	makeLogger()

	root := storage.Root{Dir: viper.GetString("storage.root")}
	if err := root.EnsureLayout(); err != nil {
		return nil, nil, err
	}

	conn, err := db.Open(root.Data())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite database, %w", err)
	}
	if err := db.Reconcile(conn, root.Data()); err != nil {
		zap.L().Error("Startup reconciliation failed", zap.Error(err))
	}

	index := storage.NewIndex(conn, root)

	sync, err := newCloudSync(index)
	if err != nil {
		return nil, nil, err
	}

	sessionTTL := time.Duration(viper.GetInt("upload.session_ttl_minutes")) * time.Minute
	sessions := service.NewSessionStore(sessionTTL)

	d := &internal.Deps{
		DB:       conn,
		Index:    index,
		Uploads:  service.NewUploadCoordinator(index, sessions, sync),
		Converts: service.NewConvertOrchestrator(index, buildConverters()),
		Links:    service.NewLinkService(index),
		Zips:     service.NewZipService(index),
		Sync:     sync,
	}

	service.StartJanitor(root, sessionTTL)

	// Scheduling only, the transfers themselves run in the background
	if sync != nil {
		if err := sync.SweepOnStartup(); err != nil {
			zap.L().Error("Cloud sync sweep failed", zap.Error(err))
		}
	}

	router := gin.New()

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Range"},
			ExposeHeaders:    []string{"Content-Length", "Content-Range"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		}),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	router.MaxMultipartMemory = 5 << 20

	maxPartSize := viper.GetInt64("upload.max_size")

	m := router.Group("/api")
	{
		// HEAD /api/heartbeat 			-> Used to check if the server is alive
		m.HEAD("/heartbeat", func(c *gin.Context) { c.Status(http.StatusOK) })
	}

	u := m.Group("/upload")
	{
		// POST /api/upload/init 		-> Opens an upload session
		u.POST("/init", middleware.BodySizeLimiter(1<<20), func(c *gin.Context) { UploadInit(c, d) })

		// GET /api/upload/check 		-> Reports staged parts and dedup state
		u.GET("/check", func(c *gin.Context) { UploadCheck(c, d) })

		// POST /api/upload/part 		-> Stages one part
		u.POST("/part", middleware.BodySizeLimiter(maxPartSize+1<<20), func(c *gin.Context) { UploadPart(c, d) })

		// POST /api/upload/complete 		-> Merges parts and indexes the file
		u.POST("/complete", func(c *gin.Context) { UploadComplete(c, d) })

		// POST /api/upload/record 		-> Instant upload via content hash
		u.POST("/record", func(c *gin.Context) { UploadAddRecord(c, d) })
	}

	f := m.Group("/files")
	{
		// GET /api/files 			-> Streams a file by ?file= key
		f.GET("", func(c *gin.Context) { FileServe(c, d) })

		// POST /api/files/link 		-> Creates a download link
		f.POST("/link", middleware.BodySizeLimiter(1<<20), func(c *gin.Context) { LinkCreate(c, d) })

		// GET /api/files/zip 			-> Lists zip entries
		f.GET("/zip", func(c *gin.Context) { ZipList(c, d) })

		// GET /api/files/zip/extract 		-> Extracts one zip entry
		f.GET("/zip/extract", func(c *gin.Context) { ZipExtract(c, d) })

		// POST /api/files/zip 			-> Compresses files into a zip
		f.POST("/zip", func(c *gin.Context) { ZipCompress(c, d) })
	}

	cv := m.Group("/convert")
	{
		// POST /api/convert 			-> Converts a source and streams the result
		cv.POST("", func(c *gin.Context) { ConvertFile(c, d) })

		// GET /api/convert/extensions 	-> Lists convertible source extensions
		cv.GET("/extensions", func(c *gin.Context) { ConvertibleExtensions(c, d) })
	}

	// GET /upload/{fileKey} 			-> Serves a file by key, ?ac=1 converts on access
	router.GET("/upload/:fileKey", func(c *gin.Context) { FileServe(c, d) })

	return router, d, nil
}

// newCloudSync picks the configured storage provider, or none at all
func newCloudSync(index *storage.Index) (*service.CloudSync, error) {
	switch viper.GetString("storage.provider") {
	case "s3":
		client, err := aws.NewS3()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
		}
		return service.NewCloudSync(index, client), nil
	case "arsenal":
		provider := service.NewHTTPProvider(viper.GetString("cloud.endpoint"), viper.GetString("cloud.token"))
		return service.NewCloudSync(index, provider), nil
	default:
		return nil, nil
	}
}

// buildConverters assembles the converter registry. Order matters: the
// orchestrator picks the first available family per extension, so the
// automation-backed office families shadow the headless fallback.
func buildConverters() []service.Converter {
	soffice := viper.GetString("convert.soffice_path")

	converters := []service.Converter{}

	factory := service.NewBinaryAutomationFactory(soffice, nil)
	if factory != nil {
		pool := service.NewAutomationPool(factory, viper.GetInt("convert.office_pool_max"))
		available := func() bool { return true }
		converters = append(converters, service.NewOfficeFamilies(pool, available)...)

		if viper.GetBool("convert.cad_enabled") {
			single := service.NewSingleInstance(factory, service.DefaultIdleTTL)
			converters = append(converters, service.NewCADConverter(single, &service.JobEvents{}, true))
		}
	}

	converters = append(converters, service.NewHeadlessConverter(soffice))

	converters = append(converters, service.NewVideoConverter(viper.GetString("convert.ffmpeg_path")))

	return converters
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()

	if lvl, err := zapcore.ParseLevel(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
