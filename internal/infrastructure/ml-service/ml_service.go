package ml_service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/jitter"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// VectorizeImageMethod — полное имя унарного метода ML-сервиса.
// Запрос: BytesValue с нормализованным JPEG. Ответ: Struct {"vector": [...], "model_version": "..."}.
const VectorizeImageMethod = "/ml.v1.MachineLearningService/VectorizeImage"

// MLService клиент для взаимодействия с внешним ML-сервисом
type MLService struct {
	conn          grpc.ClientConnInterface
	maxConcurrent int
	maxRetries    int
	timeout       time.Duration
	backoff       *jitter.Backoff
	logger        logger.Logger
}

func NewMLService(conn grpc.ClientConnInterface, cfg *cfg.MLServiceCfg, logger logger.Logger) *MLService {
	return &MLService{
		conn:          conn,
		maxConcurrent: max(cfg.MaxConcurrent, 1),
		maxRetries:    max(cfg.MaxRetries, 1),
		timeout:       cfg.Timeout,
		backoff:       jitter.NewBackoff(cfg.BaseBackoff, cfg.MaxBackoff, jitter.DefaultJitter),
		logger:        logger,
	}
}

// VectorizeRequest выполняет векторизацию изображений с retry-логикой и экспоненциальной задержкой.
// Результаты возвращаются в порядке изображений запроса.
func (m *MLService) VectorizeRequest(ctx context.Context, req *usecase.VectorizeReq) ([]usecase.VectorizeRes, error) {
	const op = "MLService.VectorizeRequest"

	if len(req.Images) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyVectors)
	}

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		vectors, err := m.vectorizeBatch(ctx, req)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, e.Wrap(op, err)
		}

		if attempt == m.maxRetries-1 {
			break
		}

		sleepTime := m.backoff.Next(attempt)
		m.logger.Warnf("vectorization failed, retrying in %v (attempt %d): %v", sleepTime, attempt+1, err)
		select {
		case <-time.After(sleepTime):
		case <-ctx.Done():
			return nil, e.Wrap(op, ctx.Err())
		}
	}

	return nil, e.Wrap(op, fmt.Errorf("all %d attempts failed: %w", m.maxRetries, lastErr))
}

// vectorizeBatch отправляет батч изображений на векторизацию параллельно с ограничением конкурентности.
// Первая ошибка отменяет оставшиеся вызовы.
func (m *MLService) vectorizeBatch(ctx context.Context, req *usecase.VectorizeReq) ([]usecase.VectorizeRes, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		vectors  = make([]usecase.VectorizeRes, len(req.Images))
		sem      = make(chan struct{}, m.maxConcurrent)
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i, image := range req.Images {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			res, err := m.vectorizeImage(ctx, image.Data)
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("image %q: %w", image.Name, err)
					cancel()
				})
				return
			}

			vectors[i] = *res
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return vectors, nil
}

func (m *MLService) vectorizeImage(ctx context.Context, data []byte) (*usecase.VectorizeRes, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	out := &structpb.Struct{}
	if err := m.conn.Invoke(ctx, VectorizeImageMethod, wrapperspb.Bytes(data), out); err != nil {
		return nil, err
	}

	return parseVectorizeResponse(out)
}

// parseVectorizeResponse извлекает вектор и версию модели из ответа ML-сервиса.
func parseVectorizeResponse(res *structpb.Struct) (*usecase.VectorizeRes, error) {
	fields := res.GetFields()

	list := fields["vector"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: missing vector", e.ErrInvalidMLResponse)
	}

	vector := make([]float32, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: vector[%d] is not a number", e.ErrInvalidMLResponse, i)
		}
		vector = append(vector, float32(n.NumberValue))
	}

	if len(vector) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	if i, ok := domain.NonFiniteIndex(vector); ok {
		return nil, fmt.Errorf("%w: vector[%d] is not finite", e.ErrInvalidMLResponse, i)
	}

	return usecase.NewVectorizeRes(vector, fields["model_version"].GetStringValue()), nil
}

// isRetryable сообщает, имеет ли смысл повторять вызов после ошибки.
func isRetryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}
