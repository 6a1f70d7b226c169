package main

import (
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"CatalogDash/internal/catalog"
	"CatalogDash/internal/dashboard"
	"CatalogDash/internal/query"
	"CatalogDash/internal/remote"
	"CatalogDash/pkg/kit"
)

func main() {
	service := "dashboard"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "8080")
	remoteURL := getenv("REMOTE_URL", "https://dummyjson.com")

	registry := prometheus.NewRegistry()

	store := catalog.NewStore(remote.NewClient(remoteURL), log)
	svc := query.NewService(store, log, query.Config{Registry: registry})

	h := dashboard.NewHandler(
		&dashboard.Server{Query: svc, Log: log},
		dashboard.HTTPDeps{
			Log:      log,
			Service:  service,
			Registry: registry,

			MetricsEnabled: getenv("METRICS_ENABLED", "") == "true",
			MetricsToken:   getenv("METRICS_TOKEN", ""),

			RateLimit:         getenvInt("RATE_LIMIT", 0),
			RateWindowSeconds: getenvInt("RATE_WINDOW_SECONDS", 60),
		},
	)

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
