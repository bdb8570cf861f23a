// ABOUTME: Pool eligibility filters mirroring the scheduler's capability matching
// ABOUTME: A pool passes a chain iff every filter passes, evaluated in order

package services

import (
	"strconv"
	"strings"

	"github.com/markalston/cinder-capacity-exporter/models"
)

// BackendFilter decides whether a pool satisfies a volume type's
// requirements. Filters are pure; chain order only bounds cost.
type BackendFilter interface {
	BackendPasses(pool models.BackendPool, volumeType models.VolumeType) bool
}

// FilterChain evaluates filters in order with short-circuit on first failure.
type FilterChain struct {
	filters []BackendFilter
}

func NewFilterChain(filters ...BackendFilter) *FilterChain {
	return &FilterChain{filters: filters}
}

func (c *FilterChain) AddFilter(filter BackendFilter) {
	c.filters = append(c.filters, filter)
}

// RunFilters returns true iff the pool passes every filter in the chain.
func (c *FilterChain) RunFilters(pool models.BackendPool, volumeType models.VolumeType) bool {
	for _, filter := range c.filters {
		if !filter.BackendPasses(pool, volumeType) {
			return false
		}
	}
	return true
}

// CapabilitiesFilter reproduces the production scheduler's capability
// matching so type-to-pool assignment here is exactly the placement
// filter's answer.
//
// Every extra spec key that is a capability requirement must be satisfied
// by the pool's reported capabilities. Unscoped keys and keys scoped
// "capabilities:" are requirements; other scopes (e.g. provisioning:type)
// are metadata for different filters and are ignored. A requirement whose
// capability key the pool did not report fails: unknown means ineligible.
type CapabilitiesFilter struct{}

func (CapabilitiesFilter) BackendPasses(pool models.BackendPool, volumeType models.VolumeType) bool {
	for key, requirement := range volumeType.ExtraSpecs {
		name := key
		if scope, rest, scoped := strings.Cut(key, ":"); scoped {
			if scope != "capabilities" {
				continue
			}
			name = rest
		}

		value, ok := pool.Capabilities[name]
		if !ok {
			return false
		}
		if !constraintMatches(value, requirement) {
			return false
		}
	}
	return true
}

// constraintMatches evaluates one requirement of form "<op> value" or a bare
// value against a reported capability. Numeric strings compare numerically,
// everything else as case-sensitive string equality.
func constraintMatches(capability any, requirement string) bool {
	words := strings.Fields(requirement)
	if len(words) > 1 {
		switch words[0] {
		case "==", "!=", "<=", ">=", "<", ">":
			return compareOp(words[0], capability, strings.Join(words[1:], " "))
		}
	}
	return equalMatch(capability, requirement)
}

func compareOp(op string, capability any, want string) bool {
	capNum, capOK := toFloat(capability)
	wantNum, err := strconv.ParseFloat(want, 64)
	if capOK && err == nil {
		switch op {
		case "==":
			return capNum == wantNum
		case "!=":
			return capNum != wantNum
		case "<=":
			return capNum <= wantNum
		case ">=":
			return capNum >= wantNum
		case "<":
			return capNum < wantNum
		case ">":
			return capNum > wantNum
		}
	}

	// Equality operators degrade to string comparison; ordering
	// operators require numbers on both sides.
	switch op {
	case "==":
		return stringify(capability) == want
	case "!=":
		return stringify(capability) != want
	}
	return false
}

func equalMatch(capability any, want string) bool {
	if capNum, ok := toFloat(capability); ok {
		if wantNum, err := strconv.ParseFloat(want, 64); err == nil {
			return capNum == wantNum
		}
	}
	return stringify(capability) == want
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
