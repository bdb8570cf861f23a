// ABOUTME: Data models for backend pools, volume types, and capacity records
// ABOUTME: JSON-tagged structures matching the block-storage control plane API

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Capabilities is the raw key/value bag a backend reports for one pool.
// Values arrive as whatever JSON type the driver chose, so typed access
// goes through the coercing helpers below.
type Capabilities map[string]any

// Has reports whether the capability key was reported at all.
func (c Capabilities) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Float returns the capability as a float64, coercing numeric strings.
// Missing or non-numeric values return the default.
func (c Capabilities) Float(key string, def float64) float64 {
	v, ok := c[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the capability as a bool, coercing "true"/"false" strings.
func (c Capabilities) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.ToLower(b)); err == nil {
			return parsed
		}
	}
	return def
}

// String returns the capability rendered as a string.
func (c Capabilities) String(key, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CustomAttribute reads a key from the nested custom_attributes bag.
func (c Capabilities) CustomAttribute(key, def string) string {
	attrs, ok := c["custom_attributes"].(map[string]any)
	if !ok {
		return def
	}
	if s, ok := attrs[key].(string); ok {
		return s
	}
	return def
}

// UnshardedName is the synthetic shard for pools reported without one.
const UnshardedName = "none"

// BackendPool is one pool as reported by the scheduler stats API.
// The name carries host@backend#pool encoding.
type BackendPool struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// BackendName returns the backend driver name reported in the capabilities.
func (p BackendPool) BackendName() string {
	return p.Capabilities.String("volume_backend_name", "")
}

// PoolName returns the pool segment of the reported name.
func (p BackendPool) PoolName() string {
	if i := strings.Index(p.Name, "#"); i >= 0 {
		return p.Name[i+1:]
	}
	return ""
}

// ShardName returns the reporting shard, or UnshardedName when absent.
func (p BackendPool) ShardName() string {
	if s := p.Capabilities.String("vcenter-shard", ""); s != "" {
		return s
	}
	return UnshardedName
}

// AggregateID returns the aggregate marker if the pool is reported
// redundantly by multiple shards.
func (p BackendPool) AggregateID() (string, bool) {
	if !p.Capabilities.Has("aggregate_id") {
		return "", false
	}
	return p.Capabilities.String("aggregate_id", ""), true
}

// VolumeType is a storage class requirement specification.
type VolumeType struct {
	Name       string            `json:"name"`
	ExtraSpecs map[string]string `json:"extra_specs"`
}

// Provisioning type values for capacity records.
const (
	ProvisioningThin  = "thin"
	ProvisioningThick = "thick"
)

// CapacityFactors is the normalized capacity accounting for one pool.
// Capacity fields are GiB; integer fields are truncated for display.
type CapacityFactors struct {
	TotalCapacity          float64  `json:"total_capacity"`
	FreeCapacity           float64  `json:"free_capacity"`
	ReservedCapacity       float64  `json:"reserved_capacity"`
	TotalReservedAvailable int64    `json:"total_reserved_available_capacity"`
	MaxOverSubscription    *float64 `json:"max_over_subscription_ratio"`
	TotalAvailableCapacity int64    `json:"total_available_capacity"`
	ProvisionedCapacity    float64  `json:"provisioned_capacity"`
	CalculatedFreeCapacity int64    `json:"calculated_free_capacity"`
	VirtualFreeCapacity    int64    `json:"virtual_free_capacity"`
	FreePercent            float64  `json:"free_percent"`
	ProvisionedRatio       float64  `json:"provisioned_ratio"`
	ProvisioningType       string   `json:"provisioned_type"`
}

// PoolRecord is the per-(pool, volume type) output of one poll cycle,
// identified by the (shard, backend, pool) label triple.
type PoolRecord struct {
	Backend    string `json:"backend"`
	Pool       string `json:"pool"`
	Shard      string `json:"shard"`
	VolumeType string `json:"volume_type"`

	CanOvercommit            bool    `json:"can_overcommit"`
	TotalCapacityGB          float64 `json:"total_capacity_gb"`
	MaxOverSubscriptionRatio float64 `json:"max_over_subscription_ratio"`
	OvercommitRatio          float64 `json:"overcommit_ratio"`
	AvailableCapacityGB      int64   `json:"available_capacity_gb"`
	AllocatedCapacityGB      float64 `json:"allocated_capacity_gb"`
	FreeCapacityGB           float64 `json:"free_capacity_gb"`
	VirtualFreeCapacityGB    int64   `json:"virtual_free_capacity_gb"`
	ReservedCapacityGB       float64 `json:"reserved_capacity_gb"`
	PercentLeft              float64 `json:"percent_left"`
	ReservedPercentage       float64 `json:"reserved_percentage"`
	ProvisioningType         string  `json:"provisioning_type"`
	AggregateID              string  `json:"aggregate_id,omitempty"`
	DriverVersion            string  `json:"driver_version"`
}

// DownBackend marks an expected backend that reported no pools in a shard.
type DownBackend struct {
	Shard   string `json:"shard"`
	Backend string `json:"backend"`
}

// AggregatedPool is one logical pool summed across redundant shard reports.
type AggregatedPool struct {
	Name                     string  `json:"name"`
	AggregateID              string  `json:"aggregate_id"`
	AllocatedCapacityGB      float64 `json:"allocated_capacity_gb"`
	FreeCapacityGB           float64 `json:"free_capacity_gb"`
	TotalCapacityGB          float64 `json:"total_capacity_gb"`
	ReservedPercentage       float64 `json:"reserved_percentage"`
	MaxOverSubscriptionRatio float64 `json:"max_over_subscription_ratio"`
	ThinProvisioningSupport  bool    `json:"thin_provisioning_support"`
	AvailableCapacityGB      float64 `json:"available_capacity_gb"`
	VirtualFreeCapacityGB    float64 `json:"virtual_free_capacity_gb"`
	FreePercent              float64 `json:"free_percent"`
	NetappFQDN               string  `json:"netapp_fqdn"`
}

// Warning reasons accumulated during a poll cycle.
const (
	WarnMissingRequiredField = "missing_required_field"
	WarnUnexpectedBackend    = "unexpected_backend"
)

// Warning is a non-fatal event from one poll cycle. The cycle always
// completes; the caller decides how to surface these.
type Warning struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// CycleResult is everything one poll cycle hands to the metrics emitter.
type CycleResult struct {
	Records    []PoolRecord     `json:"records"`
	Down       []DownBackend    `json:"down"`
	Aggregates []AggregatedPool `json:"aggregates"`
	Warnings   []Warning        `json:"warnings"`
}
