package main

import (
	"os"

	"github.com/DRSN-tech/visual-matcher/internal/app"
	config "github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/joho/godotenv"
)

//	@title			Visual Matcher API
//	@version		1.0
//	@description	Поиск визуально похожих товаров каталога по изображению
//	@host			localhost:8080
//	@BasePath		/
func main() {
	_ = godotenv.Load()

	log := logger.NewSlogLogger()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		os.Exit(1)
	}
}
