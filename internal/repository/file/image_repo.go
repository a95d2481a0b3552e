package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
)

// ImageRepo читает локальные изображения товаров из каталога данных.
type ImageRepo struct {
	dataDir  string
	maxBytes int64
}

func NewImageRepo(dataDir string, maxBytes int64) *ImageRepo {
	return &ImageRepo{
		dataDir:  dataDir,
		maxBytes: maxBytes,
	}
}

// Read читает файл по пути относительно каталога данных. Выход за пределы каталога запрещён.
func (i *ImageRepo) Read(ctx context.Context, path string) (*domain.Image, error) {
	const op = "ImageRepo.Read"

	path = strings.TrimSpace(path)
	if path == "" || !filepath.IsLocal(path) {
		return nil, e.Wrap(op, fmt.Errorf("%w: %q", e.ErrNoImageSource, path))
	}

	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	full := filepath.Join(i.dataDir, path)

	info, err := os.Stat(full)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if i.maxBytes > 0 && info.Size() > i.maxBytes {
		return nil, e.Wrap(op, fmt.Errorf("%w: %s is %d bytes", e.ErrFileTooLarge, path, info.Size()))
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return domain.NewImage(data, infrastructure.DetectMIME(path, data), path), nil
}
