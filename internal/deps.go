package internal

import (
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/service"
	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/storage"
	"gorm.io/gorm"
)

// Deps bundles the engine's components for injection into the HTTP
// handlers. Nothing in here is a package global, so tests can build as
// many independent instances as they like.
type Deps struct {
	DB       *gorm.DB
	Index    *storage.Index
	Uploads  *service.UploadCoordinator
	Converts *service.ConvertOrchestrator
	Links    *service.LinkService
	Zips     *service.ZipService
	Sync     *service.CloudSync // nil when no provider is configured
}
