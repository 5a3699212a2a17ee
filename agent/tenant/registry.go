// Package tenant maps inbound phone numbers to restaurant accounts.
package tenant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	contractx "github.com/adhityan/resto-ai-sub001/agent/contract"
)

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	byPhone map[string]contractx.TenantConfig
}

type fileFormat struct {
	Tenants []contractx.TenantConfig `yaml:"tenants"`
}

// New builds a registry keyed by the inbound number exactly as delivered by
// the telephony layer.
func New(tenants []contractx.TenantConfig) (*Registry, error) {
	r := &Registry{byPhone: make(map[string]contractx.TenantConfig, len(tenants))}
	ids := make(map[string]struct{}, len(tenants))

	for i, t := range tenants {
		if err := validateTenant(t); err != nil {
			return nil, fmt.Errorf("%w: tenants[%d]: %v", contractx.ErrConfiguration, i, err)
		}
		if _, dup := r.byPhone[t.InboundPhoneNumber]; dup {
			return nil, fmt.Errorf("%w: duplicate inbound_phone_number %s", contractx.ErrConfiguration, t.InboundPhoneNumber)
		}
		if _, dup := ids[t.TenantID]; dup {
			return nil, fmt.Errorf("%w: duplicate tenant_id %s", contractx.ErrConfiguration, t.TenantID)
		}
		ids[t.TenantID] = struct{}{}
		r.byPhone[t.InboundPhoneNumber] = t
	}
	return r, nil
}

// Load reads a YAML tenant map of the form:
//
//	tenants:
//	  - tenant_id: 353816f8-...
//	    inbound_phone_number: "+33753549003"
//	    api_key: ...
//	    manager_phone_number: "+33600000000"
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tenants file: %v", contractx.ErrConfiguration, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing tenants file: %v", contractx.ErrConfiguration, err)
	}
	if len(f.Tenants) == 0 {
		return nil, fmt.Errorf("%w: tenants file defines no tenants", contractx.ErrConfiguration)
	}
	return New(f.Tenants)
}

// Resolve is an exact-match lookup with no normalization and no default tenant.
func (r *Registry) Resolve(phoneNumber string) (contractx.TenantConfig, error) {
	if r != nil {
		if t, ok := r.byPhone[phoneNumber]; ok {
			return t, nil
		}
	}
	return contractx.TenantConfig{}, fmt.Errorf("%w: %s", contractx.ErrTenantNotFound, phoneNumber)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byPhone)
}

func validateTenant(t contractx.TenantConfig) error {
	switch {
	case strings.TrimSpace(t.TenantID) == "":
		return fmt.Errorf("tenant_id is required")
	case strings.TrimSpace(t.InboundPhoneNumber) == "":
		return fmt.Errorf("inbound_phone_number is required")
	case t.InboundPhoneNumber != strings.TrimSpace(t.InboundPhoneNumber):
		return fmt.Errorf("inbound_phone_number must not contain surrounding whitespace")
	case strings.TrimSpace(t.APIKey) == "":
		return fmt.Errorf("api_key is required")
	case strings.TrimSpace(t.ManagerPhoneNumber) == "":
		return fmt.Errorf("manager_phone_number is required")
	}
	return nil
}
