package main

import (
	"github.com/Edric-Li/forguncy-arsenal-sub000/api"
	"github.com/Edric-Li/forguncy-arsenal-sub000/config"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	router, deps, err := api.NewRouter()
	if err != nil {
		panic(err)
	}

	if config.SweepOnly() {
		if deps.Sync != nil {
			deps.Sync.Wait()
		}
		zap.L().Info("Cloud sync sweep finished, exiting")
		return
	}

	zap.L().Info("Server starting", zap.Int("port", viper.GetInt("host.port")))

	err = router.Run(":" + viper.GetString("host.port"))
	if err != nil {
		panic(err)
	}
}
