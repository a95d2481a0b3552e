package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/infrastructure"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// ToHTTPResponse сопоставляет ошибку с HTTP-статусом и сообщением для клиента.
// Внутренние подробности наружу не отдаются.
func ToHTTPResponse(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrNoImage):
		return http.StatusBadRequest, e.ErrNoImage.Error()
	case errors.Is(err, e.ErrInvalidImageURL):
		return http.StatusBadRequest, e.ErrInvalidImageURL.Error()
	case errors.Is(err, e.ErrInvalidMinScore):
		return http.StatusBadRequest, e.ErrInvalidMinScore.Error()
	case errors.Is(err, e.ErrMinScorePrecision):
		return http.StatusBadRequest, e.ErrMinScorePrecision.Error()
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrFileTooLarge), errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrImageDecodeFailure):
		return http.StatusUnprocessableEntity, e.ErrImageDecodeFailure.Error()
	case errors.Is(err, e.ErrImageFetchFailure):
		return http.StatusUnprocessableEntity, e.ErrImageFetchFailure.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnprocessableEntity, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrEmptyCatalog),
		errors.Is(err, e.ErrCatalogMisaligned),
		errors.Is(err, e.ErrCatalogFormat),
		errors.Is(err, e.ErrEmbeddingsNotFound),
		errors.Is(err, e.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, e.ErrCatalogUnavailable.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	WriteSuccess(w, code, NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parseMinScore разбирает порог близости вида "0.5" или "0.75".
// Пустая строка означает значение по умолчанию. Допускается не больше двух знаков после запятой.
func parseMinScore(s string, defaultValue float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultValue, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, e.ErrInvalidMinScore
	}

	if d.LessThan(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(1)) {
		return 0, e.ErrInvalidMinScore
	}

	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return 0, e.ErrMinScorePrecision
	}

	return d.InexactFloat64(), nil
}

// parseMatchForm разбирает тело запроса: multipart/form-data (с файлом) или urlencoded (только ссылка).
func parseMatchForm(r *http.Request, maxMemory int64) error {
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return e.Wrap(whereami.WhereAmI(), bodyError(err))
		}
	case strings.HasPrefix(contentType, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return e.Wrap(whereami.WhereAmI(), bodyError(err))
		}
	default:
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	return nil
}

func bodyError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return e.ErrFileTooLarge
	}

	return e.ErrStatusBadRequest
}

// parseUpload возвращает загруженное изображение или nil, если файла в запросе нет.
func parseUpload(form *multipart.Form, maxFileSize int64) (*domain.Image, error) {
	if form == nil || len(form.File["image"]) == 0 {
		return nil, nil
	}

	files := form.File["image"]
	if len(files) > 1 {
		return nil, e.ErrNoImage
	}

	return readFile(files[0], maxFileSize)
}

func readFile(fh *multipart.FileHeader, maxSize int64) (*domain.Image, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return nil, e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return domain.NewImage(data, infrastructure.DetectMIME(fh.Filename, data), fh.Filename), nil
}
