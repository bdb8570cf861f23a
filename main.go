// ABOUTME: Entry point for the Cinder capacity exporter
// ABOUTME: Serves Prometheus metrics for block storage pool capacity and health

package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markalston/cinder-capacity-exporter/cache"
	"github.com/markalston/cinder-capacity-exporter/collector"
	"github.com/markalston/cinder-capacity-exporter/config"
	"github.com/markalston/cinder-capacity-exporter/handlers"
	"github.com/markalston/cinder-capacity-exporter/logger"
	"github.com/markalston/cinder-capacity-exporter/middleware"
	"github.com/markalston/cinder-capacity-exporter/services"
)

func main() {
	// Optional .env for local development; real deployments use the environment
	godotenv.Load()

	// Initialize structured logging
	logger.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting Cinder Capacity Exporter")
	slog.Info("OpenStack configured", "auth_url", cfg.OSAuthURL, "region", cfg.OSRegionName)

	osClient := services.NewOpenStackClient(cfg)

	var shardSource collector.ShardSource
	if cfg.VSphereConfigured() {
		slog.Info("vSphere configured, discovering shard topology", "host", cfg.VSphereHost, "datacenter", cfg.VSphereDatacenter)
		shardSource = services.NewVSphereClient(services.VSphereCredentials{
			Host:       cfg.VSphereHost,
			Username:   cfg.VSphereUsername,
			Password:   cfg.VSpherePassword,
			Datacenter: cfg.VSphereDatacenter,
			Insecure:   cfg.VSphereInsecure,
		})
	} else {
		slog.Info("vSphere not configured, using static shard list", "shards", cfg.Shards)
	}

	// Initialize reference-data cache
	cacheTTL := time.Duration(cfg.VolumeTypeCacheTTL) * time.Second
	c := cache.New(cacheTTL)
	slog.Info("Cache initialized", "volume_type_ttl", cacheTTL, "shard_ttl", time.Duration(cfg.ShardCacheTTL)*time.Second)

	// Register the capacity collector on a dedicated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collector.New(cfg, osClient, shardSource, c))

	h := handlers.NewHandler(osClient, cfg.VSphereConfigured(), c)
	metrics := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	http.HandleFunc("/metrics", middleware.LogRequest(metrics.ServeHTTP))
	http.HandleFunc("/healthz", middleware.LogRequest(h.Health))

	// Start server
	addr := ":" + cfg.Port
	slog.Info("Server listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
