package app

import (
	"context"

	"github.com/mx-space/catalog/internal/config"
	"github.com/mx-space/catalog/internal/pkg/imagestore"
)

func newImageStore(ctx context.Context, cfg *config.AppConfig) (imagestore.Store, error) {
	is := cfg.ImageStorage
	if is.Driver == config.ImageDriverS3 {
		return imagestore.NewS3(ctx, imagestore.S3Options{
			Endpoint:        is.S3.Endpoint,
			Region:          is.S3.Region,
			Bucket:          is.S3.Bucket,
			AccessKeyID:     is.S3.AccessKeyID,
			SecretAccessKey: is.S3.SecretAccessKey,
			CustomDomain:    is.S3.CustomDomain,
			PathStyleAccess: is.S3.PathStyleAccess,
		})
	}
	return imagestore.NewLocal(cfg.ImageDir(), is.BaseURL)
}
