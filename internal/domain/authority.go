package domain

import (
	"fmt"
	"strings"
)

// AuthorityCategory is the routing label the analysis stage returns.
type AuthorityCategory string

const (
	CategoryCorporation      AuthorityCategory = "Corporation"
	CategoryMunicipality     AuthorityCategory = "Municipality"
	CategoryPanchayat        AuthorityCategory = "Panchayat"
	CategoryWaterBoard       AuthorityCategory = "Water Board"
	CategoryElectricityBoard AuthorityCategory = "Electricity Board"
	CategoryTrafficPolice    AuthorityCategory = "Traffic Police"
)

// AuthorityCategories lists the closed set of categories.
var AuthorityCategories = []AuthorityCategory{
	CategoryCorporation,
	CategoryMunicipality,
	CategoryPanchayat,
	CategoryWaterBoard,
	CategoryElectricityBoard,
	CategoryTrafficPolice,
}

// Valid reports whether c is a known category.
func (c AuthorityCategory) Valid() bool {
	switch c {
	case CategoryCorporation, CategoryMunicipality, CategoryPanchayat,
		CategoryWaterBoard, CategoryElectricityBoard, CategoryTrafficPolice:
		return true
	}
	return false
}

// ParseAuthorityCategory matches case-insensitively.
func ParseAuthorityCategory(raw string) (AuthorityCategory, error) {
	trimmed := strings.TrimSpace(raw)
	for _, c := range AuthorityCategories {
		if strings.EqualFold(string(c), trimmed) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown authority category %q", raw)
}

// Authority is static reference data: the organization responsible for a category of issues.
type Authority struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Category AuthorityCategory `json:"type" yaml:"type"`
	Email    string            `json:"email" yaml:"email"`
	Whatsapp string            `json:"whatsapp" yaml:"whatsapp"`
}
