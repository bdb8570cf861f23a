// ABOUTME: Tests for the full poll cycle orchestration
// ABOUTME: Covers record emission, warnings, presence, and aggregation together

package services

import (
	"testing"

	"github.com/markalston/cinder-capacity-exporter/models"
)

func cyclePool(backend, pool, shard string, thin bool) models.BackendPool {
	return models.BackendPool{
		Name: "host@" + backend + "#" + pool,
		Capabilities: models.Capabilities{
			"volume_backend_name":         backend,
			"vcenter-shard":               shard,
			"total_capacity_gb":           float64(100),
			"free_capacity_gb":            float64(40),
			"allocated_capacity_gb":       float64(50),
			"thin_provisioning_support":   thin,
			"max_over_subscription_ratio": float64(2),
			"reserved_percentage":         float64(10),
			"driver_version":              "3.0.0",
		},
	}
}

func TestRunCycle_EndToEnd(t *testing.T) {
	pools := []models.BackendPool{
		cyclePool("backend-a", "pool-1", "vc-a-0", true),
		cyclePool("backend-b", "pool-2", "vc-a-0", false),
	}
	volumeTypes := []models.VolumeType{
		{Name: "standard", ExtraSpecs: map[string]string{"thin_provisioning_support": "true"}},
	}

	result := RunCycle(pools, volumeTypes, CycleOptions{
		Shards:                  []string{"vc-a-0"},
		ExpectedBackends:        []string{"backend-a", "backend-b"},
		AllowUnexpectedBackends: true,
	})

	if len(result.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", result.Warnings)
	}
	if len(result.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(result.Records))
	}

	// pool-1 matched the thin class: overcommitted accounting
	thin := result.Records[0]
	if thin.VolumeType != "standard" || thin.Pool != "pool-1" {
		t.Errorf("Expected pool-1 in standard bucket first, got %+v", thin)
	}
	if thin.AvailableCapacityGB != 180 || thin.VirtualFreeCapacityGB != 130 {
		t.Errorf("Expected thin accounting 180/130, got %d/%d",
			thin.AvailableCapacityGB, thin.VirtualFreeCapacityGB)
	}

	// pool-2 matched nothing: Unknown bucket, thick accounting
	unknown := result.Records[1]
	if unknown.VolumeType != UnknownVolumeType || unknown.Pool != "pool-2" {
		t.Errorf("Expected pool-2 in Unknown bucket, got %+v", unknown)
	}
	if unknown.ProvisioningType != models.ProvisioningThick {
		t.Errorf("Expected thick accounting for unmatched pool, got %s", unknown.ProvisioningType)
	}

	// Both expected backends reported in vc-a-0; only the synthetic
	// unsharded shard saw nothing
	for _, down := range result.Down {
		if down.Shard == "vc-a-0" {
			t.Errorf("Unexpected down record for reporting shard: %v", down)
		}
	}
}

func TestRunCycle_MalformedPoolSkippedWithWarning(t *testing.T) {
	broken := models.BackendPool{
		Name:         "host@backend-a#pool-1",
		Capabilities: models.Capabilities{}, // no volume_backend_name
	}
	good := cyclePool("backend-a", "pool-1", "vc-a-0", true)

	result := RunCycle([]models.BackendPool{broken, good}, nil, CycleOptions{AllowUnexpectedBackends: true})

	if len(result.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(result.Records))
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Reason != models.WarnMissingRequiredField {
		t.Errorf("Expected one missing-field warning, got %v", result.Warnings)
	}
}

func TestRunCycle_UnexpectedBackendWarned(t *testing.T) {
	pools := []models.BackendPool{cyclePool("backend-x", "pool-1", "vc-a-0", true)}

	result := RunCycle(pools, nil, CycleOptions{
		Shards:                  []string{"vc-a-0"},
		ExpectedBackends:        []string{"backend-a"},
		AllowUnexpectedBackends: false,
	})

	// Pool is still reported even though presence accounting excluded it
	if len(result.Records) != 1 {
		t.Errorf("Expected record for unexpected backend, got %d", len(result.Records))
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Reason != models.WarnUnexpectedBackend {
		t.Errorf("Expected unexpected-backend warning, got %v", result.Warnings)
	}

	// And backend-a is still down in vc-a-0
	foundDown := false
	for _, down := range result.Down {
		if down.Shard == "vc-a-0" && down.Backend == "backend-a" {
			foundDown = true
		}
	}
	if !foundDown {
		t.Error("Expected down record for expected backend-a")
	}
}

func TestRunCycle_MultiMatchEmitsPerVolumeType(t *testing.T) {
	pools := []models.BackendPool{cyclePool("backend-a", "pool-1", "vc-a-0", true)}
	volumeTypes := []models.VolumeType{
		{Name: "standard", ExtraSpecs: map[string]string{"thin_provisioning_support": "true"}},
		{Name: "backend-a-class", ExtraSpecs: map[string]string{"volume_backend_name": "backend-a"}},
	}

	result := RunCycle(pools, volumeTypes, CycleOptions{AllowUnexpectedBackends: true})

	if len(result.Records) != 2 {
		t.Fatalf("Expected one record per matched type, got %d", len(result.Records))
	}
	if result.Records[0].VolumeType != "standard" || result.Records[1].VolumeType != "backend-a-class" {
		t.Errorf("Expected records in volume type order, got %q then %q",
			result.Records[0].VolumeType, result.Records[1].VolumeType)
	}
}

func TestRunCycle_AggregatesIncluded(t *testing.T) {
	withAgg := cyclePool("backend-a", "pool-1", "vc-a-0", true)
	withAgg.Capabilities["aggregate_id"] = "agg-1"
	twin := cyclePool("backend-a", "pool-1", "vc-a-1", true)
	twin.Capabilities["aggregate_id"] = "agg-1"

	result := RunCycle([]models.BackendPool{withAgg, twin}, nil, CycleOptions{AllowUnexpectedBackends: true})

	if len(result.Aggregates) != 1 {
		t.Fatalf("Expected 1 aggregate, got %d", len(result.Aggregates))
	}
	if result.Aggregates[0].AllocatedCapacityGB != 100 {
		t.Errorf("Expected summed allocation 100, got %v", result.Aggregates[0].AllocatedCapacityGB)
	}
}
