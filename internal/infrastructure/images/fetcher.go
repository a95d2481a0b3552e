package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"golang.org/x/time/rate"
)

const userAgent = "visual-matcher/1.0"

// Fetcher скачивает изображения по http(s)-ссылкам с ограничением размера и, при необходимости, скорости.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	limiter  *rate.Limiter // nil: без ограничения
}

// NewFetcher создаёт загрузчик. limiter может быть nil: онлайн-поиск скачивает одно изображение на запрос
// и в ограничении не нуждается, а batch-задача передаёт общий лимитер на все воркеры.
func NewFetcher(timeout time.Duration, maxBytes int64, limiter *rate.Limiter) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after %d redirects", len(via))
				}
				if !isHTTPScheme(req.URL.Scheme) {
					return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		limiter:  limiter,
	}
}

// Fetch скачивает изображение по ссылке.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.Image, error) {
	const op = "Fetcher.Fetch"

	u, err := parseImageURL(rawURL)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, e.Wrap(op, fmt.Errorf("%w: %v", e.ErrInvalidImageURL, err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, e.Wrap(op, fmt.Errorf("%w: %v", e.ErrImageFetchFailure, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, e.Wrap(op, fmt.Errorf("%w: status %d", e.ErrImageFetchFailure, resp.StatusCode))
	}

	if resp.ContentLength > f.maxBytes {
		return nil, e.Wrap(op, fmt.Errorf("%w: %d bytes", e.ErrFileTooLarge, resp.ContentLength))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, e.Wrap(op, fmt.Errorf("%w: %v", e.ErrImageFetchFailure, err))
	}

	if int64(len(data)) > f.maxBytes {
		return nil, e.Wrap(op, fmt.Errorf("%w: more than %d bytes", e.ErrFileTooLarge, f.maxBytes))
	}

	if len(data) == 0 {
		return nil, e.Wrap(op, fmt.Errorf("%w: empty body", e.ErrImageFetchFailure))
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
		mime = infrastructure.DetectMIME(u.Path, data)
	}

	return domain.NewImage(data, mime, u.String()), nil
}

// parseImageURL допускает только абсолютные http(s)-ссылки с хостом.
func parseImageURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrInvalidImageURL, err)
	}

	if !isHTTPScheme(u.Scheme) || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", e.ErrInvalidImageURL, rawURL)
	}

	return u, nil
}

func isHTTPScheme(scheme string) bool {
	return strings.EqualFold(scheme, "http") || strings.EqualFold(scheme, "https")
}
