package e

import "fmt"

var (
	// Ошибки каталога
	ErrEmptyCatalog       = fmt.Errorf("empty catalog")
	ErrCatalogMisaligned  = fmt.Errorf("catalog rows and embeddings are misaligned")
	ErrCatalogFormat      = fmt.Errorf("invalid catalog format")
	ErrDimensionMismatch  = fmt.Errorf("vector dimension mismatch")
	ErrEmbeddingsNotFound = fmt.Errorf("embeddings not found")

	// Внутренние ошибки с векторами
	ErrEmptyVectors         = fmt.Errorf("empty vectors")
	ErrVectorEmbeddingEmpty = fmt.Errorf("vector embedding is empty")
	ErrInvalidMLResponse    = fmt.Errorf("invalid ml service response")

	// Ошибки изображений
	ErrImageDecodeFailure   = fmt.Errorf("unable to decode image")
	ErrImageFetchFailure    = fmt.Errorf("unable to fetch image")
	ErrNoImageSource        = fmt.Errorf("no valid image source found")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")

	// 400 Bad Request
	ErrStatusBadRequest  = fmt.Errorf("bad request")
	ErrExpectedMultipart = fmt.Errorf("expected multipart/form-data")
	ErrNoImage           = fmt.Errorf("image or image_url is required")
	ErrInvalidImageURL   = fmt.Errorf("invalid image url")
	ErrInvalidMinScore   = fmt.Errorf("min_score must be a number in [0, 1]")
	ErrMinScorePrecision = fmt.Errorf("min_score must have at most 2 decimal places")
	ErrFileTooLarge      = fmt.Errorf("file too large")

	// 500
	ErrInternalServerError = fmt.Errorf("internal server error")
	ErrCatalogUnavailable  = fmt.Errorf("catalog unavailable")

	// Конфигурация
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
	ErrUnknownCatalogSource = fmt.Errorf("unknown catalog source")

	// Транзакции
	ErrTransactionNotFound = fmt.Errorf("transaction not found")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
