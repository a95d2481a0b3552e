package images

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Processor приводит изображения к единому виду перед векторизацией:
// учитывает EXIF-ориентацию, убирает прозрачность, вписывает в квадрат targetSize и кодирует в JPEG.
type Processor struct {
	targetSize int
	quality    int
}

func NewProcessor(targetSize, quality int) *Processor {
	return &Processor{
		targetSize: targetSize,
		quality:    quality,
	}
}

// Normalize декодирует изображение и возвращает его нормализованную JPEG-копию.
// Пропорции сохраняются, маленькие изображения не увеличиваются.
func (p *Processor) Normalize(img *domain.Image) (*domain.Image, error) {
	const op = "Processor.Normalize"

	if img == nil || len(img.Data) == 0 {
		return nil, e.Wrap(op, e.ErrImageDecodeFailure)
	}

	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, e.Wrap(op, fmt.Errorf("%w: %s: %v", e.ErrImageDecodeFailure, img.Name, err))
	}

	rgb := flatten(src)
	if p.targetSize > 0 {
		rgb = imaging.Fit(rgb, p.targetSize, p.targetSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rgb, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, e.Wrap(op, err)
	}

	return domain.NewImage(buf.Bytes(), "image/jpeg", img.Name), nil
}

// flatten накладывает изображение на белый фон, чтобы прозрачные области не становились чёрными.
func flatten(src image.Image) *image.NRGBA {
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}
