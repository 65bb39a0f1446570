package main

import (
	"context"
	"net/http"
	"os"

	"github.com/diwise/entity-store/internal/pkg/application/stack"
	"github.com/diwise/entity-store/internal/pkg/infrastructure/router"
	"github.com/diwise/entity-store/internal/pkg/infrastructure/storage/postgres"
	"github.com/diwise/entity-store/internal/pkg/presentation/api"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	appName string = "entity-store"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	configFilePath := env.GetVariableOrDefault(ctx, "STORES_CONFIG_FILE", "/opt/diwise/config/stores.yaml")

	configFile, err := os.Open(configFilePath)
	if err != nil {
		log.Error("failed to open configuration file", "file", configFilePath, "err", err.Error())
		os.Exit(1)
	}

	cfg, err := stack.LoadConfiguration(configFile)
	configFile.Close()

	if err != nil {
		log.Error("failed to load configuration", "err", err.Error())
		os.Exit(1)
	}

	var pool postgres.Pool

	if needsDatabase(cfg) {
		conn, err := postgres.Connect(ctx, postgres.LoadConfiguration(ctx))
		if err != nil {
			log.Error("failed to connect to database", "err", err.Error())
			os.Exit(1)
		}
		defer conn.Close()

		err = postgres.CreateTables(ctx, conn)
		if err != nil {
			log.Error("failed to create tables", "err", err.Error())
			os.Exit(1)
		}

		pool = conn
	}

	stores := map[string]api.Entry{}

	for _, sc := range cfg.Stores {
		s, model, err := stack.New(ctx, sc, pool)
		if err != nil {
			log.Error("failed to compose store stack", "entity_type", sc.EntityType, "err", err.Error())
			os.Exit(1)
		}

		stores[sc.EntityType] = api.Entry{Store: s, Model: model, Read: sc.ReadContext()}
	}

	r := router.New(appName)
	r.Handle("/metrics", promhttp.Handler())

	err = api.RegisterHandlers(ctx, r, stores)
	if err != nil {
		log.Error("failed to register handlers", "err", err.Error())
		os.Exit(1)
	}

	port := env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080")
	log.Info("starting to listen for connections", "port", port)

	err = http.ListenAndServe(":"+port, r)
	if err != nil {
		log.Error("failed to listen for connections", "err", err.Error())
		os.Exit(1)
	}
}

func needsDatabase(cfg *stack.Config) bool {
	for _, sc := range cfg.Stores {
		if sc.Durable.Enabled || sc.Recovery.Enabled {
			return true
		}
	}
	return false
}
