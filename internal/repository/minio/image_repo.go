package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ImageRepo читает локальные изображения товаров из бакета MinIO.
// Путь из колонки image каталога становится ключом объекта с префиксом ObjectPrefix.
type ImageRepo struct {
	mc       *minio.Client
	cfg      *cfg.MinIOCfg
	maxBytes int64
}

func NewImageRepo(mc *minio.Client, cfg *cfg.MinIOCfg, maxBytes int64) *ImageRepo {
	return &ImageRepo{
		mc:       mc,
		cfg:      cfg,
		maxBytes: maxBytes,
	}
}

func (i *ImageRepo) Read(ctx context.Context, imagePath string) (*domain.Image, error) {
	key, err := objectKey(i.cfg.ObjectPrefix, imagePath)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	obj, err := i.mc.GetObject(ctx, i.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: object %s not found", e.ErrNoImageSource, key))
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if i.maxBytes > 0 && info.Size > i.maxBytes {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s is %d bytes", e.ErrFileTooLarge, key, info.Size))
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	mime := info.ContentType
	if !strings.HasPrefix(mime, "image/") {
		mime = infrastructure.DetectMIME(imagePath, data)
	}

	return domain.NewImage(data, mime, key), nil
}

// objectKey строит ключ объекта. Абсолютные пути и выход за префикс через ".." запрещены.
func objectKey(prefix, imagePath string) (string, error) {
	imagePath = strings.TrimSpace(imagePath)
	if imagePath == "" || strings.HasPrefix(imagePath, "/") {
		return "", fmt.Errorf("%w: %q", e.ErrNoImageSource, imagePath)
	}

	cleaned := path.Clean(strings.ReplaceAll(imagePath, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", e.ErrNoImageSource, imagePath)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return cleaned, nil
	}

	return prefix + "/" + cleaned, nil
}
