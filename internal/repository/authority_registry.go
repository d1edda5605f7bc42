package repository

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/civic-ticket-service/internal/domain"
)

// AuthorityRegistry is read-only reference data used to route tickets.
type AuthorityRegistry interface {
	List() []domain.Authority
	GetByID(id string) (domain.Authority, bool)
	FindByCategory(category domain.AuthorityCategory) (domain.Authority, bool)
	// Resolve returns the first authority for category, or the default one.
	Resolve(category domain.AuthorityCategory) domain.Authority
	Default() domain.Authority
	// Categories lists the categories the registry can route to, in registry order.
	Categories() []domain.AuthorityCategory
}

type authorityRegistry struct {
	authorities []domain.Authority
	byID        map[string]int
	defaultIdx  int
}

// DefaultAuthorities is the built-in registry used when no file is configured.
func DefaultAuthorities() []domain.Authority {
	return []domain.Authority{
		{ID: "auth_muni", Name: "City Municipal Corporation", Category: domain.CategoryCorporation, Email: "commissioner@citycorp.gov", Whatsapp: "15550109999"},
		{ID: "auth_water", Name: "Metro Water Supply Board", Category: domain.CategoryWaterBoard, Email: "helpdesk@metrowater.gov", Whatsapp: "15550123456"},
		{ID: "auth_elec", Name: "State Electricity Board", Category: domain.CategoryElectricityBoard, Email: "outage@electricity.gov", Whatsapp: "15550198888"},
		{ID: "auth_police", Name: "Traffic Police Dept", Category: domain.CategoryTrafficPolice, Email: "traffic@police.gov", Whatsapp: "15550112222"},
	}
}

// NewAuthorityRegistry validates the entries and the default id.
func NewAuthorityRegistry(authorities []domain.Authority, defaultID string) (AuthorityRegistry, error) {
	if len(authorities) == 0 {
		return nil, fmt.Errorf("authority registry is empty")
	}
	reg := &authorityRegistry{
		authorities: append([]domain.Authority(nil), authorities...),
		byID:        make(map[string]int, len(authorities)),
		defaultIdx:  -1,
	}
	for i, a := range reg.authorities {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("authority at index %d has no id", i)
		}
		if !a.Category.Valid() {
			return nil, fmt.Errorf("authority %s: unknown category %q", a.ID, a.Category)
		}
		if _, dup := reg.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate authority id %s", a.ID)
		}
		reg.byID[a.ID] = i
		if a.ID == defaultID {
			reg.defaultIdx = i
		}
	}
	if defaultID == "" {
		reg.defaultIdx = 0
	}
	if reg.defaultIdx < 0 {
		return nil, fmt.Errorf("default authority %q not in registry", defaultID)
	}
	return reg, nil
}

type authorityFile struct {
	Authorities []domain.Authority `yaml:"authorities"`
}

// LoadAuthoritiesFile reads a YAML document of the form `authorities: [{id, name, type, email, whatsapp}]`.
func LoadAuthoritiesFile(path string) ([]domain.Authority, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorities file: %w", err)
	}
	var doc authorityFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse authorities file: %w", err)
	}
	for i := range doc.Authorities {
		cat, err := domain.ParseAuthorityCategory(string(doc.Authorities[i].Category))
		if err != nil {
			return nil, fmt.Errorf("authority %s: %w", doc.Authorities[i].ID, err)
		}
		doc.Authorities[i].Category = cat
	}
	return doc.Authorities, nil
}

func (r *authorityRegistry) List() []domain.Authority {
	return append([]domain.Authority(nil), r.authorities...)
}

func (r *authorityRegistry) GetByID(id string) (domain.Authority, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return domain.Authority{}, false
	}
	return r.authorities[idx], true
}

func (r *authorityRegistry) FindByCategory(category domain.AuthorityCategory) (domain.Authority, bool) {
	for _, a := range r.authorities {
		if a.Category == category {
			return a, true
		}
	}
	return domain.Authority{}, false
}

func (r *authorityRegistry) Resolve(category domain.AuthorityCategory) domain.Authority {
	if a, ok := r.FindByCategory(category); ok {
		return a
	}
	return r.Default()
}

func (r *authorityRegistry) Default() domain.Authority {
	return r.authorities[r.defaultIdx]
}

func (r *authorityRegistry) Categories() []domain.AuthorityCategory {
	seen := make(map[domain.AuthorityCategory]bool)
	out := make([]domain.AuthorityCategory, 0, len(r.authorities))
	for _, a := range r.authorities {
		if seen[a.Category] {
			continue
		}
		seen[a.Category] = true
		out = append(out, a.Category)
	}
	return out
}
