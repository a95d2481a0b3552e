package domain

// Payload описывает дополнительную информацию вектора в векторном хранилище
type Payload map[string]any

// Embedding — вектор одного изображения, полученный от ML-сервиса
type Embedding struct {
	Vector       []float32
	ModelVersion string
}

func NewEmbedding(vector []float32, modelVersion string) *Embedding {
	return &Embedding{
		Vector:       vector,
		ModelVersion: modelVersion,
	}
}

// NewPayload собирает payload точки каталога: позицию строки и поля товара.
func NewPayload(position int, product Product, embeddingValid bool) Payload {
	return Payload{
		"position":        int64(position),
		"name":            product.Name,
		"description":     product.Description,
		"image_url":       product.ImageURL,
		"category":        product.Category,
		"image_path":      product.ImagePath,
		"embedding_valid": embeddingValid,
	}
}
