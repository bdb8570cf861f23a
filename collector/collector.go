// ABOUTME: Prometheus collector running one capacity poll cycle per scrape
// ABOUTME: Emits pool, backend-up, and aggregate gauges from cycle results

package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/markalston/cinder-capacity-exporter/cache"
	"github.com/markalston/cinder-capacity-exporter/config"
	"github.com/markalston/cinder-capacity-exporter/models"
	"github.com/markalston/cinder-capacity-exporter/services"
)

// StorageClient is the control plane surface the collector needs.
type StorageClient interface {
	GetPools() ([]models.BackendPool, error)
	GetVolumeTypes() ([]models.VolumeType, error)
}

// ShardSource discovers the shard topology. Optional; the static SHARDS
// config is the fallback.
type ShardSource interface {
	ListShards(ctx context.Context) ([]string, error)
}

const (
	volumeTypesCacheKey = "volume_types"
	shardsCacheKey      = "shards"
)

type CapacityCollector struct {
	cfg    *config.Config
	client StorageClient
	shards ShardSource
	cache  *cache.Cache

	totalCapacityDesc    *prometheus.Desc
	freeCapacityDesc     *prometheus.Desc
	allocatedDesc        *prometheus.Desc
	availableDesc        *prometheus.Desc
	virtualFreeDesc      *prometheus.Desc
	reservedDesc         *prometheus.Desc
	freePercentDesc      *prometheus.Desc
	overcommitRatioDesc  *prometheus.Desc
	oversubscriptionDesc *prometheus.Desc
	backendUpDesc        *prometheus.Desc
	aggAllocatedDesc     *prometheus.Desc
	aggTotalDesc         *prometheus.Desc
	aggVirtualFreeDesc   *prometheus.Desc
	aggFreePercentDesc   *prometheus.Desc
	pollWarningsDesc     *prometheus.Desc
	pollSuccessDesc      *prometheus.Desc
}

// New creates the capacity collector. shards may be nil when vSphere
// topology discovery is not configured.
func New(cfg *config.Config, client StorageClient, shards ShardSource, dataCache *cache.Cache) *CapacityCollector {
	poolLabels := []string{"backend", "pool", "shard", "volume_type"}
	aggLabels := []string{"pool", "netapp_fqdn"}

	return &CapacityCollector{
		cfg:    cfg,
		client: client,
		shards: shards,
		cache:  dataCache,

		totalCapacityDesc: prometheus.NewDesc(
			"cinder_pool_total_capacity_gb",
			"Total capacity of the pool in GiB as reported by the backend.",
			poolLabels, nil,
		),
		freeCapacityDesc: prometheus.NewDesc(
			"cinder_pool_free_capacity_gb",
			"Free capacity of the pool in GiB as reported by the backend.",
			poolLabels, nil,
		),
		allocatedDesc: prometheus.NewDesc(
			"cinder_pool_allocated_capacity_gb",
			"Capacity allocated to volumes in GiB.",
			poolLabels, nil,
		),
		availableDesc: prometheus.NewDesc(
			"cinder_pool_available_capacity_gb",
			"Capacity available to the scheduler after reservation and oversubscription in GiB.",
			poolLabels, nil,
		),
		virtualFreeDesc: prometheus.NewDesc(
			"cinder_pool_virtual_free_capacity_gb",
			"Capacity left for new allocations in GiB.",
			poolLabels, nil,
		),
		reservedDesc: prometheus.NewDesc(
			"cinder_pool_reserved_capacity_gb",
			"Capacity held back from allocation in GiB.",
			poolLabels, nil,
		),
		freePercentDesc: prometheus.NewDesc(
			"cinder_pool_free_percent",
			"Percentage of available capacity left.",
			poolLabels, nil,
		),
		overcommitRatioDesc: prometheus.NewDesc(
			"cinder_pool_overcommit_ratio",
			"Ratio of provisioned to available capacity.",
			poolLabels, nil,
		),
		oversubscriptionDesc: prometheus.NewDesc(
			"cinder_pool_max_oversubscription_ratio",
			"Maximum oversubscription ratio; reported for thin provisioned pools only.",
			poolLabels, nil,
		),
		backendUpDesc: prometheus.NewDesc(
			"cinder_backend_up",
			"1 when the backend reported pools in the shard this cycle, 0 when silent.",
			[]string{"backend", "shard"}, nil,
		),
		aggAllocatedDesc: prometheus.NewDesc(
			"cinder_aggregate_pool_allocated_capacity_gb",
			"Allocated capacity summed across shard reports of the logical pool in GiB.",
			aggLabels, nil,
		),
		aggTotalDesc: prometheus.NewDesc(
			"cinder_aggregate_pool_total_capacity_gb",
			"Total physical capacity of the logical pool in GiB.",
			aggLabels, nil,
		),
		aggVirtualFreeDesc: prometheus.NewDesc(
			"cinder_aggregate_pool_virtual_free_capacity_gb",
			"Capacity left on the logical pool after summed allocation in GiB.",
			aggLabels, nil,
		),
		aggFreePercentDesc: prometheus.NewDesc(
			"cinder_aggregate_pool_free_percent",
			"Floored percentage of the logical pool still free.",
			aggLabels, nil,
		),
		pollWarningsDesc: prometheus.NewDesc(
			"cinder_poll_warnings",
			"Warnings accumulated during the last poll cycle.",
			nil, nil,
		),
		pollSuccessDesc: prometheus.NewDesc(
			"cinder_poll_success",
			"1 when the last poll of the control plane succeeded.",
			nil, nil,
		),
	}
}

func (c *CapacityCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *CapacityCollector) Collect(ch chan<- prometheus.Metric) {
	slog.Debug("Collecting capacity metrics")

	pools, err := c.client.GetPools()
	if err != nil {
		slog.Error("Failed to fetch scheduler pools", "error", err)
		ch <- prometheus.MustNewConstMetric(c.pollSuccessDesc, prometheus.GaugeValue, 0)
		return
	}

	volumeTypes, err := c.volumeTypes()
	if err != nil {
		// Classification degrades to the Unknown bucket; capacity
		// accounting still works
		slog.Warn("Failed to fetch volume types, classifying all pools as Unknown", "error", err)
	}

	result := services.RunCycle(pools, volumeTypes, services.CycleOptions{
		Shards:                  c.shardList(),
		ExpectedBackends:        c.cfg.ExpectedBackends,
		AllowUnexpectedBackends: c.cfg.AllowUnexpectedBackends,
	})

	for _, warning := range result.Warnings {
		slog.Warn("Poll cycle warning", "reason", warning.Reason, "detail", warning.Message)
	}

	reporting := make(map[models.DownBackend]bool)
	for _, record := range result.Records {
		labels := []string{record.Backend, record.Pool, record.Shard, record.VolumeType}

		ch <- prometheus.MustNewConstMetric(c.totalCapacityDesc, prometheus.GaugeValue, record.TotalCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.freeCapacityDesc, prometheus.GaugeValue, record.FreeCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.allocatedDesc, prometheus.GaugeValue, record.AllocatedCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.availableDesc, prometheus.GaugeValue, float64(record.AvailableCapacityGB), labels...)
		ch <- prometheus.MustNewConstMetric(c.virtualFreeDesc, prometheus.GaugeValue, float64(record.VirtualFreeCapacityGB), labels...)
		ch <- prometheus.MustNewConstMetric(c.reservedDesc, prometheus.GaugeValue, record.ReservedCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.freePercentDesc, prometheus.GaugeValue, record.PercentLeft, labels...)
		ch <- prometheus.MustNewConstMetric(c.overcommitRatioDesc, prometheus.GaugeValue, record.OvercommitRatio, labels...)
		if record.ProvisioningType == models.ProvisioningThin {
			ch <- prometheus.MustNewConstMetric(c.oversubscriptionDesc, prometheus.GaugeValue, record.MaxOverSubscriptionRatio, labels...)
		}

		reporting[models.DownBackend{Shard: record.Shard, Backend: record.Backend}] = true
	}

	for pair := range reporting {
		ch <- prometheus.MustNewConstMetric(c.backendUpDesc, prometheus.GaugeValue, 1, pair.Backend, pair.Shard)
	}
	for _, down := range result.Down {
		ch <- prometheus.MustNewConstMetric(c.backendUpDesc, prometheus.GaugeValue, 0, down.Backend, down.Shard)
	}

	for _, agg := range result.Aggregates {
		labels := []string{agg.Name, agg.NetappFQDN}
		ch <- prometheus.MustNewConstMetric(c.aggAllocatedDesc, prometheus.GaugeValue, agg.AllocatedCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.aggTotalDesc, prometheus.GaugeValue, agg.TotalCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.aggVirtualFreeDesc, prometheus.GaugeValue, agg.VirtualFreeCapacityGB, labels...)
		ch <- prometheus.MustNewConstMetric(c.aggFreePercentDesc, prometheus.GaugeValue, agg.FreePercent, labels...)
	}

	ch <- prometheus.MustNewConstMetric(c.pollWarningsDesc, prometheus.GaugeValue, float64(len(result.Warnings)))
	ch <- prometheus.MustNewConstMetric(c.pollSuccessDesc, prometheus.GaugeValue, 1)
}

// volumeTypes reads the storage class definitions through the cache.
func (c *CapacityCollector) volumeTypes() ([]models.VolumeType, error) {
	ttl := time.Duration(c.cfg.VolumeTypeCacheTTL) * time.Second
	cached, err := c.cache.Fetch(volumeTypesCacheKey, ttl, func() (interface{}, error) {
		return c.client.GetVolumeTypes()
	})
	if err != nil {
		return nil, err
	}
	return cached.([]models.VolumeType), nil
}

// shardList returns the shard topology: discovered from vSphere when
// configured (cached), otherwise the static config list.
func (c *CapacityCollector) shardList() []string {
	if c.shards == nil {
		return c.cfg.Shards
	}

	ttl := time.Duration(c.cfg.ShardCacheTTL) * time.Second
	cached, err := c.cache.Fetch(shardsCacheKey, ttl, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return c.shards.ListShards(ctx)
	})
	if err != nil {
		slog.Warn("Shard discovery failed, using configured shard list", "error", err)
		return c.cfg.Shards
	}
	return cached.([]string)
}
