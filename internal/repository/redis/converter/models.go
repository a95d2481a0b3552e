package converter

// EmbeddingRedisModel — представление вектора запроса в кэше Redis
type EmbeddingRedisModel struct {
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	CachedAt     int64     `json:"cached_at"` // unix-время записи, для отладки
}
