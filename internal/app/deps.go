package app

import (
	"context"
	"fmt"
	"time"

	config "github.com/DRSN-tech/visual-matcher/internal/cfg"
	ml_service "github.com/DRSN-tech/visual-matcher/internal/infrastructure/ml-service"
	fileRepo "github.com/DRSN-tech/visual-matcher/internal/repository/file"
	s3Repo "github.com/DRSN-tech/visual-matcher/internal/repository/minio"
	"github.com/DRSN-tech/visual-matcher/internal/repository/pgdb"
	qdrantRepo "github.com/DRSN-tech/visual-matcher/internal/repository/qdrant"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/clients"
	"github.com/DRSN-tech/visual-matcher/pkg/closer"
	"github.com/DRSN-tech/visual-matcher/pkg/e"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/DRSN-tech/visual-matcher/pkg/postgres"
	"github.com/jimlawless/whereami"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const initTimeout = 10 * time.Second

// newCatalogRepo выбирает хранилище каталога по CATALOG_SOURCE и регистрирует его ресурсы в closer.
func newCatalogRepo(cfg *config.Config, log logger.Logger, cl *closer.Closer) (usecase.CatalogRepository, error) {
	switch cfg.Catalog.Source {
	case config.CatalogSourceFile:
		return fileRepo.NewCatalogRepo(cfg.Catalog.CSVPath, cfg.Catalog.EmbeddingsPath), nil

	case config.CatalogSourcePostgres:
		db, err := initPGDB(log, cfg)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		cl.AddSimple("postgres", func() error {
			db.Close()
			return nil
		})
		return pgdb.NewCatalogRepo(db.Pool), nil

	case config.CatalogSourceQdrant:
		qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		cl.AddSimple("qdrant", qdrantClient.Close)
		return qdrantRepo.NewCatalogRepo(qdrantClient.Client, qdrantClient.CollectionName()), nil

	default:
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s", e.ErrUnknownCatalogSource, cfg.Catalog.Source))
	}
}

func initPGDB(log logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.Db)
	if err != nil {
		log.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(log, postgres.MigrationsURL); err != nil {
		log.Errorf(err, "failed to run migrations")
		db.Close()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}

// newMLService открывает gRPC-соединение с ML-сервисом. Соединение устанавливается лениво при первом вызове.
func newMLService(cfg *config.Config, log logger.Logger, cl *closer.Closer) (*ml_service.MLService, error) {
	conn, err := grpc.NewClient(
		cfg.Ml.Addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.AddSimple("ml grpc connection", conn.Close)

	return ml_service.NewMLService(conn, cfg.Ml, log), nil
}

// newImageRepo возвращает хранилище локальных изображений товаров: MinIO, если он настроен, иначе каталог данных.
func newImageRepo(cfg *config.Config, log logger.Logger) (usecase.ImageRepository, error) {
	if !cfg.Minio.Enabled {
		return fileRepo.NewImageRepo(cfg.Catalog.DataDir, cfg.Images.MaxBytes), nil
	}

	minioClient, err := clients.NewMinIOClient(cfg.Minio)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.CheckBucket(ctx, minioClient, cfg.Minio.BucketName); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	log.Infof("product images are read from MinIO bucket %s", cfg.Minio.BucketName)
	return s3Repo.NewImageRepo(minioClient, cfg.Minio, cfg.Images.MaxBytes), nil
}
