// ABOUTME: Tests for capability bag coercion and pool name extraction
// ABOUTME: Covers JSON type variance across backend drivers

package models

import "testing"

func TestCapabilities_Float(t *testing.T) {
	caps := Capabilities{
		"total_capacity_gb":           float64(1024.5),
		"max_over_subscription_ratio": "2.5",
		"reserved_percentage":         float64(10),
		"driver_version":              "3.0.0",
	}

	if got := caps.Float("total_capacity_gb", 0); got != 1024.5 {
		t.Errorf("Expected 1024.5, got %v", got)
	}
	// Drivers report the oversubscription ratio as a string
	if got := caps.Float("max_over_subscription_ratio", 1); got != 2.5 {
		t.Errorf("Expected 2.5 from string coercion, got %v", got)
	}
	if got := caps.Float("missing", 1); got != 1 {
		t.Errorf("Expected default 1 for missing key, got %v", got)
	}
	if got := caps.Float("driver_version", 7); got != 7 {
		t.Errorf("Expected default for non-numeric value, got %v", got)
	}
}

func TestCapabilities_Bool(t *testing.T) {
	caps := Capabilities{
		"thin_provisioning_support": true,
		"qos_support":               "False",
	}

	if !caps.Bool("thin_provisioning_support", false) {
		t.Error("Expected true")
	}
	if caps.Bool("qos_support", true) {
		t.Error("Expected string 'False' to coerce to false")
	}
	if caps.Bool("missing", true) != true {
		t.Error("Expected default for missing key")
	}
}

func TestCapabilities_CustomAttribute(t *testing.T) {
	caps := Capabilities{
		"custom_attributes": map[string]any{"netapp_fqdn": "filer1.example.com"},
	}

	if got := caps.CustomAttribute("netapp_fqdn", "N/A"); got != "filer1.example.com" {
		t.Errorf("Expected filer1.example.com, got %q", got)
	}
	if got := caps.CustomAttribute("other", "N/A"); got != "N/A" {
		t.Errorf("Expected default, got %q", got)
	}

	empty := Capabilities{}
	if got := empty.CustomAttribute("netapp_fqdn", "N/A"); got != "N/A" {
		t.Errorf("Expected default without custom_attributes, got %q", got)
	}
}

func TestBackendPool_NameExtraction(t *testing.T) {
	pool := BackendPool{
		Name: "cinder-volume-host@backend-a#pool-1",
		Capabilities: Capabilities{
			"volume_backend_name": "backend-a",
			"vcenter-shard":       "vc-a-0",
		},
	}

	if got := pool.PoolName(); got != "pool-1" {
		t.Errorf("Expected pool-1, got %q", got)
	}
	if got := pool.BackendName(); got != "backend-a" {
		t.Errorf("Expected backend-a, got %q", got)
	}
	if got := pool.ShardName(); got != "vc-a-0" {
		t.Errorf("Expected vc-a-0, got %q", got)
	}
}

func TestBackendPool_Defaults(t *testing.T) {
	pool := BackendPool{Name: "host@backend", Capabilities: Capabilities{}}

	if got := pool.PoolName(); got != "" {
		t.Errorf("Expected empty pool name without # separator, got %q", got)
	}
	if got := pool.ShardName(); got != UnshardedName {
		t.Errorf("Expected %q shard, got %q", UnshardedName, got)
	}
	if _, ok := pool.AggregateID(); ok {
		t.Error("Expected no aggregate ID")
	}
}
