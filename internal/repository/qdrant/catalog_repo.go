package qdrant

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/DRSN-tech/visual-matcher/internal/domain"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

const batchSize = 256

// pointNamespace — пространство имён UUIDv5 для идентификаторов точек каталога.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d3b-5a7f-9e21-3c4d5b6a7f80")

// PointsClient — операции Qdrant, которые использует репозиторий.
type PointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
}

// CatalogRepo хранит каталог в коллекции Qdrant: одна точка на строку каталога,
// поля товара и позиция строки лежат в payload.
type CatalogRepo struct {
	client     PointsClient
	collection string
}

func NewCatalogRepo(client PointsClient, collection string) *CatalogRepo {
	return &CatalogRepo{
		client:     client,
		collection: collection,
	}
}

// Save пересоздаёт коллекцию и загружает в неё каталог батчами.
func (q *CatalogRepo) Save(ctx context.Context, catalog *domain.Catalog) error {
	if catalog.Len() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrEmptyCatalog)
	}

	if err := q.recreateCollection(ctx, uint64(catalog.Dim)); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	for start := 0; start < catalog.Len(); start += batchSize {
		end := min(start+batchSize, catalog.Len())

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, toPoint(i, catalog.Items[i], catalog.Dim))
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

// Load читает все точки коллекции и восстанавливает исходный порядок строк по позиции.
func (q *CatalogRepo) Load(ctx context.Context) (*domain.Catalog, error) {
	type positioned struct {
		position int64
		item     domain.CatalogItem
	}

	var (
		rows   []positioned
		offset *qdrant.PointId
	)
	for {
		points, next, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(batchSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		for _, p := range points {
			position, item, err := fromPoint(p)
			if err != nil {
				return nil, e.Wrap(whereami.WhereAmI(), err)
			}
			rows = append(rows, positioned{position: position, item: item})
		}

		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	slices.SortFunc(rows, func(a, b positioned) int {
		return cmp.Compare(a.position, b.position)
	})

	items := make([]domain.CatalogItem, 0, len(rows))
	for i, row := range rows {
		if row.position != int64(i) {
			return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: expected position %d, got %d", e.ErrCatalogMisaligned, i, row.position))
		}
		items = append(items, row.item)
	}

	catalog, err := domain.NewCatalog(items)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return catalog, nil
}

// recreateCollection удаляет коллекцию, если она есть, и создаёт пустую нужной размерности.
// Метрика Dot хранит нулевые векторы невалидных товаров без нормализации.
func (q *CatalogRepo) recreateCollection(ctx context.Context, dim uint64) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}

	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Dot,
		}),
	}); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// PointID возвращает детерминированный идентификатор точки для позиции строки каталога.
func PointID(position int) string {
	return uuid.NewSHA1(pointNamespace, []byte(strconv.Itoa(position))).String()
}

func toPoint(position int, item domain.CatalogItem, dim int) *qdrant.PointStruct {
	vector := item.Vector
	if len(vector) == 0 {
		vector = make([]float32, dim)
	}

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(position)),
		Vectors: qdrant.NewVectorsDense(vector),
		Payload: qdrant.NewValueMap(domain.NewPayload(position, item.Product, item.EmbeddingValid)),
	}
}

func fromPoint(p *qdrant.RetrievedPoint) (int64, domain.CatalogItem, error) {
	payload := p.GetPayload()

	positionValue, ok := payload["position"]
	if !ok {
		return 0, domain.CatalogItem{}, fmt.Errorf("%w: point %s has no position", e.ErrCatalogFormat, p.GetId().GetUuid())
	}

	product := domain.NewProduct(
		payload["name"].GetStringValue(),
		payload["description"].GetStringValue(),
		payload["image_url"].GetStringValue(),
		payload["category"].GetStringValue(),
		payload["image_path"].GetStringValue(),
	)

	var vector []float32
	if out := p.GetVectors().GetVector(); out != nil {
		if dense := out.GetDense(); dense != nil {
			vector = dense.GetData()
		} else {
			vector = out.GetData() //nolint:staticcheck // старые версии сервера отдают плотный вектор в Data
		}
	}

	return positionValue.GetIntegerValue(), domain.NewCatalogItem(*product, vector, payload["embedding_valid"].GetBoolValue()), nil
}
