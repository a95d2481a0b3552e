package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/jimlawless/whereami"
)

// Источники каталога
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
	CatalogSourceQdrant   = "qdrant"
)

type Config struct {
	Http    *HTTPConfig
	Ml      *MLServiceCfg
	Catalog *CatalogCfg
	Match   *MatchCfg
	Images  *ImagesCfg
	Db      *PGDBCfg
	Qdrant  *QdrantCfg
	Redis   *RedisCfg
	Minio   *MinIOCfg
	Kafka   *KafkaCfg
}

type HTTPConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64
	AllowedOrigins []string
}

type MLServiceCfg struct {
	Addr          string
	MaxConcurrent int
	MaxRetries    int
	Timeout       time.Duration // таймаут одного вызова VectorizeImage
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

type CatalogCfg struct {
	Source         string // file | postgres | qdrant
	CSVPath        string // табличный файл каталога
	EmbeddingsPath string // бинарный файл с векторами, выровненный по строкам CSV
	DataDir        string // каталог с локальными изображениями товаров
	VectorSize     int
}

type MatchCfg struct {
	TopK            int
	DefaultMinScore float64
}

type ImagesCfg struct {
	FetchTimeout  time.Duration
	MaxBytes      int64
	TargetSize    int // сторона квадрата, в который вписывается изображение перед векторизацией
	JPEGQuality   int
	FetchRPS      float64 // ограничение скорости загрузки удалённых изображений в batch-задаче
	BatchParallel int
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type QdrantCfg struct {
	Port                 int
	Host                 string
	ApiKey               string
	QdrantCollectionName string // имя коллекции в Qdrant
	UseTLS               bool
	VectorSize           uint64
}

type RedisCfg struct {
	Enabled      bool
	Addr         string
	Password     string
	User         string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	Timeout      time.Duration
	EmbeddingTTL time.Duration
}

type MinIOCfg struct {
	Enabled           bool
	MinioEndpoint     string // Адрес конечной точки Minio
	BucketName        string // Бакет с изображениями товаров
	MinioRootUser     string // Имя пользователя для доступа к Minio
	MinioRootPassword string // Пароль для доступа к Minio
	MinioUseSSL       bool
	ObjectPrefix      string // Префикс ключей изображений внутри бакета
}

type KafkaCfg struct {
	Enabled           bool
	Topic             string
	Brokers           []string
	WriteTimeout      time.Duration
	Partitions        int
	ReplicationFactor int
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := loadMLServiceCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	catalog, err := loadCatalogCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	match, err := loadMatchCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	images, err := loadImagesCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var db *PGDBCfg
	if catalog.Source == CatalogSourcePostgres {
		db, err = loadPGDBCfg(log)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	qdrant, err := loadQdrantCfg(log, catalog)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Http:    http,
		Ml:      ml,
		Catalog: catalog,
		Match:   match,
		Images:  images,
		Db:      db,
		Qdrant:  qdrant,
		Redis:   redis,
		Minio:   minio,
		Kafka:   kafka,
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort           = "8080"
		defaultReadTimeout    = 10 * time.Second
		defaultWriteTimeout   = 30 * time.Second
		defaultIdleTimeout    = 60 * time.Second
		defaultMaxRequestSize = 20 << 20
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	maxRequestSize, err := parseIntEnv("HTTP_MAX_REQUEST_SIZE", defaultMaxRequestSize)
	if err != nil {
		log.Errorf(err, "invalid HTTP_MAX_REQUEST_SIZE")
		return nil, e.Wrap("HTTP_MAX_REQUEST_SIZE", err)
	}

	return &HTTPConfig{
		Port:           getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxRequestSize: int64(maxRequestSize),
		AllowedOrigins: splitList(getEnvOrDefault("HTTP_ALLOWED_ORIGINS", "*")),
	}, nil
}

func loadMLServiceCfg(log logger.Logger) (*MLServiceCfg, error) {
	const (
		defaultHost          = "ml-service"
		defaultPort          = "50051"
		defaultMaxConcurrent = 8
		defaultMaxRetries    = 3
		defaultTimeout       = 15 * time.Second
		defaultBaseBackoff   = 1 * time.Second
		defaultMaxBackoff    = 30 * time.Second
	)

	maxConcurrent, err := parseIntEnv("ML_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil || maxConcurrent <= 0 {
		log.Errorf(err, "invalid ML_MAX_CONCURRENT")
		return nil, e.Wrap("ML_MAX_CONCURRENT", e.ErrIncorrectEnvVariable)
	}

	maxRetries, err := parseIntEnv("ML_MAX_RETRIES", defaultMaxRetries)
	if err != nil || maxRetries <= 0 {
		log.Errorf(err, "invalid ML_MAX_RETRIES")
		return nil, e.Wrap("ML_MAX_RETRIES", e.ErrIncorrectEnvVariable)
	}

	timeout, err := parseDurationEnv("ML_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid ML_TIMEOUT")
		return nil, err
	}

	baseBackoff, err := parseDurationEnv("ML_BASE_BACKOFF", defaultBaseBackoff)
	if err != nil {
		log.Errorf(err, "invalid ML_BASE_BACKOFF")
		return nil, err
	}

	maxBackoff, err := parseDurationEnv("ML_MAX_BACKOFF", defaultMaxBackoff)
	if err != nil {
		log.Errorf(err, "invalid ML_MAX_BACKOFF")
		return nil, err
	}

	host := getEnvOrDefault("ML_HOST", defaultHost)
	port := getEnvOrDefault("ML_PORT", defaultPort)

	return &MLServiceCfg{
		Addr:          host + ":" + port,
		MaxConcurrent: maxConcurrent,
		MaxRetries:    maxRetries,
		Timeout:       timeout,
		BaseBackoff:   baseBackoff,
		MaxBackoff:    maxBackoff,
	}, nil
}

func loadCatalogCfg(log logger.Logger) (*CatalogCfg, error) {
	const (
		defaultSource         = CatalogSourceFile
		defaultCSVPath        = "data/products.csv"
		defaultEmbeddingsPath = "data/product_embeddings.vec"
		defaultDataDir        = "data"
		defaultVectorSize     = 512
	)

	source := strings.ToLower(getEnvOrDefault("CATALOG_SOURCE", defaultSource))
	switch source {
	case CatalogSourceFile, CatalogSourcePostgres, CatalogSourceQdrant:
	default:
		err := fmt.Errorf("%w: %s", e.ErrUnknownCatalogSource, source)
		log.Errorf(err, "invalid CATALOG_SOURCE")
		return nil, err
	}

	vectorSize, err := parseIntEnv("VECTOR_SIZE", defaultVectorSize)
	if err != nil || vectorSize <= 0 {
		log.Errorf(err, "invalid VECTOR_SIZE")
		return nil, e.Wrap("VECTOR_SIZE", e.ErrIncorrectEnvVariable)
	}

	return &CatalogCfg{
		Source:         source,
		CSVPath:        getEnvOrDefault("CATALOG_CSV_PATH", defaultCSVPath),
		EmbeddingsPath: getEnvOrDefault("CATALOG_EMBEDDINGS_PATH", defaultEmbeddingsPath),
		DataDir:        getEnvOrDefault("CATALOG_DATA_DIR", defaultDataDir),
		VectorSize:     vectorSize,
	}, nil
}

func loadMatchCfg(log logger.Logger) (*MatchCfg, error) {
	const (
		defaultTopK     = 1
		defaultMinScore = "0.5"
	)

	topK, err := parseIntEnv("MATCH_TOP_K", defaultTopK)
	if err != nil || topK <= 0 {
		log.Errorf(err, "invalid MATCH_TOP_K")
		return nil, e.Wrap("MATCH_TOP_K", e.ErrIncorrectEnvVariable)
	}

	minScore, err := strconv.ParseFloat(getEnvOrDefault("MATCH_DEFAULT_MIN_SCORE", defaultMinScore), 64)
	if err != nil || minScore < 0 || minScore > 1 {
		log.Errorf(err, "invalid MATCH_DEFAULT_MIN_SCORE")
		return nil, e.Wrap("MATCH_DEFAULT_MIN_SCORE", e.ErrIncorrectEnvVariable)
	}

	return &MatchCfg{
		TopK:            topK,
		DefaultMinScore: minScore,
	}, nil
}

func loadImagesCfg(log logger.Logger) (*ImagesCfg, error) {
	const (
		defaultFetchTimeout  = 5 * time.Second
		defaultMaxBytes      = 15 << 20
		defaultTargetSize    = 224
		defaultJPEGQuality   = 95
		defaultFetchRPS      = "5"
		defaultBatchParallel = 4
	)

	fetchTimeout, err := parseDurationEnv("IMAGE_FETCH_TIMEOUT", defaultFetchTimeout)
	if err != nil {
		log.Errorf(err, "invalid IMAGE_FETCH_TIMEOUT")
		return nil, err
	}

	maxBytes, err := parseIntEnv("IMAGE_MAX_BYTES", defaultMaxBytes)
	if err != nil || maxBytes <= 0 {
		log.Errorf(err, "invalid IMAGE_MAX_BYTES")
		return nil, e.Wrap("IMAGE_MAX_BYTES", e.ErrIncorrectEnvVariable)
	}

	targetSize, err := parseIntEnv("IMAGE_TARGET_SIZE", defaultTargetSize)
	if err != nil || targetSize <= 0 {
		log.Errorf(err, "invalid IMAGE_TARGET_SIZE")
		return nil, e.Wrap("IMAGE_TARGET_SIZE", e.ErrIncorrectEnvVariable)
	}

	quality, err := parseIntEnv("IMAGE_JPEG_QUALITY", defaultJPEGQuality)
	if err != nil || quality < 1 || quality > 100 {
		log.Errorf(err, "invalid IMAGE_JPEG_QUALITY")
		return nil, e.Wrap("IMAGE_JPEG_QUALITY", e.ErrIncorrectEnvVariable)
	}

	fetchRPS, err := strconv.ParseFloat(getEnvOrDefault("IMAGE_FETCH_RPS", defaultFetchRPS), 64)
	if err != nil || fetchRPS <= 0 {
		log.Errorf(err, "invalid IMAGE_FETCH_RPS")
		return nil, e.Wrap("IMAGE_FETCH_RPS", e.ErrIncorrectEnvVariable)
	}

	parallel, err := parseIntEnv("BATCH_PARALLEL", defaultBatchParallel)
	if err != nil || parallel <= 0 {
		log.Errorf(err, "invalid BATCH_PARALLEL")
		return nil, e.Wrap("BATCH_PARALLEL", e.ErrIncorrectEnvVariable)
	}

	return &ImagesCfg{
		FetchTimeout:  fetchTimeout,
		MaxBytes:      int64(maxBytes),
		TargetSize:    targetSize,
		JPEGQuality:   quality,
		FetchRPS:      fetchRPS,
		BatchParallel: parallel,
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost    = "localhost"
		defaultPort    = "5432"
		defaultSSLMode = "disable"
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	return &PGDBCfg{
		Host:     getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:     getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  getEnvOrDefault("SSL_MODE", defaultSSLMode),
	}, nil
}

func loadQdrantCfg(log logger.Logger, catalog *CatalogCfg) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort = "6334"
		defaultUseTLS         = false
		defaultCollection     = "product_catalog"
	)

	port, err := strconv.Atoi(getEnvOrDefault("QDRANT_GRPC_PORT", defaultQdrantGRPCPort))
	if err != nil {
		log.Errorf(err, "invalid QDRANT_GRPC_PORT")
		return nil, err
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		log.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	host := getEnv("QDRANT_HOST")
	if host == "" && catalog.Source == CatalogSourceQdrant {
		err := fmt.Errorf("QDRANT_HOST is required for CATALOG_SOURCE=qdrant")
		log.Errorf(err, "missing QDRANT_HOST")
		return nil, err
	}

	return &QdrantCfg{
		Host:                 host,
		Port:                 port,
		ApiKey:               getEnv("QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault("COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           uint64(catalog.VectorSize),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultEmbeddingTTL = 10 * time.Minute
	)

	// Кэш эмбеддингов опционален: без REDIS_ADDR запросы всегда уходят в ML-сервис
	addr := getEnv("REDIS_ADDR")

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, e.Wrap("REDIS_DB_ID", err)
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, e.Wrap("MAX_RETRIES", err)
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	embeddingTTL, err := parseDurationEnv("EMBEDDING_CACHE_TTL", defaultEmbeddingTTL)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDING_CACHE_TTL")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Enabled:      addr != "",
		Addr:         addr,
		Password:     getEnv("REDIS_PASSWORD"),
		User:         getEnv("REDIS_USER"),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		Timeout:      timeout,
		EmbeddingTTL: embeddingTTL,
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const defaultUseSSL = false

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	endpoint := getEnv("MINIO_ENDPOINT")
	bucket := getEnv("BUCKET_NAME")
	if endpoint != "" && bucket == "" {
		err := fmt.Errorf("BUCKET_NAME is required when MINIO_ENDPOINT is set")
		log.Errorf(err, "missing BUCKET_NAME")
		return nil, err
	}

	return &MinIOCfg{
		Enabled:           endpoint != "",
		MinioEndpoint:     endpoint,
		BucketName:        bucket,
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		ObjectPrefix:      getEnv("MINIO_OBJECT_PREFIX"),
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultTopic             = "product-matches"
		defaultWriteTimeout      = 10 * time.Second
		defaultPartitions        = 1
		defaultReplicationFactor = 1
	)

	writeTimeout, err := parseDurationEnv("KAFKA_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		return nil, e.Wrap("KAFKA_WRITE_TIMEOUT", err)
	}

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil || partitions <= 0 {
		return nil, e.Wrap("KAFKA_PARTITIONS", e.ErrIncorrectEnvVariable)
	}

	replication, err := parseIntEnv("KAFKA_REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil || replication <= 0 {
		return nil, e.Wrap("KAFKA_REPLICATION_FACTOR", e.ErrIncorrectEnvVariable)
	}

	brokers := splitList(getEnv("KAFKA_BROKERS"))

	return &KafkaCfg{
		Enabled:           len(brokers) > 0,
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		WriteTimeout:      writeTimeout,
		Partitions:        partitions,
		ReplicationFactor: replication,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

// splitList разбивает список через запятую, отбрасывая пустые элементы.
func splitList(v string) []string {
	var res []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}

	return res
}
