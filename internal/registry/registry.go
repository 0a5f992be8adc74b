// Package registry holds the AMFI reporting identifiers the pipeline
// iterates over: investment categories with their sub-category IDs, the
// fund-house table, and the scheme-name prefixes used to attribute
// industry-wide records to a fund house. A default registry is embedded;
// deployments can override it with a YAML file.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistryYAML []byte

// IndustryFundHouseID queries all fund houses at once.
const IndustryFundHouseID = 0

type (
	SubCategory struct {
		ID   int    `yaml:"id"`
		Name string `yaml:"name"`
	}

	CategoryGroup struct {
		ID            int           `yaml:"id"`
		Name          string        `yaml:"name"`
		SubCategories []SubCategory `yaml:"sub_categories"`
	}

	FundHouse struct {
		ID    int    `yaml:"id"`
		Name  string `yaml:"name"`
		Short string `yaml:"short"`
	}

	Prefix struct {
		Prefix string `yaml:"prefix"`
		Short  string `yaml:"short"`
	}

	Registry struct {
		MaturityType int             `yaml:"maturity_type"`
		Categories   []CategoryGroup `yaml:"categories"`
		FundHouses   []FundHouse     `yaml:"fund_houses"`
		Prefixes     []Prefix        `yaml:"prefixes"`
	}
)

// Default returns the embedded registry.
func Default() *Registry {
	r, err := parse(defaultRegistryYAML)
	if err != nil {
		// The embedded file ships with the binary; failing to parse it is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("registry: embedded registry invalid: %v", err))
	}
	return r
}

// Load reads a registry from path, or returns the embedded default when
// path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	r, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}
	return r, nil
}

func parse(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal registry: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	// Longest prefix first so "Invesco India " beats any shorter overlap.
	sort.SliceStable(r.Prefixes, func(i, j int) bool {
		return len(r.Prefixes[i].Prefix) > len(r.Prefixes[j].Prefix)
	})
	return &r, nil
}

func (r *Registry) validate() error {
	if len(r.Categories) == 0 {
		return fmt.Errorf("registry has no categories")
	}
	for _, c := range r.Categories {
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", c.ID)
		}
		if len(c.SubCategories) == 0 {
			return fmt.Errorf("category %q has no sub-categories", c.Name)
		}
	}
	return nil
}

// FundHouseName returns the full name for an AMFI fund-house ID.
func (r *Registry) FundHouseName(id int) (string, bool) {
	for _, fh := range r.FundHouses {
		if fh.ID == id {
			return fh.Name, true
		}
	}
	return "", false
}

// ShortName returns the chart display name for a fund house.
func (r *Registry) ShortName(name string) string {
	for _, fh := range r.FundHouses {
		if fh.Name == name {
			return fh.Short
		}
	}
	name = strings.ReplaceAll(name, " Mutual Fund", "")
	return strings.TrimSuffix(name, " MF")
}

// ExtractFundHouse attributes a scheme to a fund house by scheme-name
// prefix. Used for industry-wide fetches where the API does not label
// records with the issuing house.
func (r *Registry) ExtractFundHouse(schemeName string) string {
	for _, p := range r.Prefixes {
		if strings.HasPrefix(schemeName, p.Prefix) {
			return p.Short
		}
	}
	return "Other"
}

// SubCategoryCount returns the number of (category, sub-category) pairs a
// full fetch iterates.
func (r *Registry) SubCategoryCount() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.SubCategories)
	}
	return n
}
