package main

import (
	"fmt"
	"os"

	"github.com/DRSN-tech/photo-search/internal/app"
	config "github.com/DRSN-tech/photo-search/internal/cfg"
	"github.com/DRSN-tech/photo-search/pkg/logger"
)

//	@title			photo-search API
//	@version		1.0
//	@description	Визуальный поиск товаров по фото
//	@BasePath		/api/v1
func main() {
	log, err := logger.NewZapLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	if cfg.Log.Level != os.Getenv("LOG_LEVEL") {
		if leveled, err := logger.NewZapLogger(cfg.Log.Level); err == nil {
			log = leveled
		}
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
