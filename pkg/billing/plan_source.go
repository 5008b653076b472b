package billing

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PlansSource loads plan definitions into a Catalog.
type PlansSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a PlansSource serving a fixed list of plans.
// Panics if no plans are given so a misconfigured service fails at startup.
func NewInMemSource(plans ...Plan) PlansSource {
	if len(plans) == 0 {
		panic("billing: at least one plan is required")
	}
	cp := make([]Plan, len(plans))
	copy(cp, plans)
	return &inMemSource{plans: cp}
}

func (s *inMemSource) Load(ctx context.Context) ([]Plan, error) {
	cp := make([]Plan, len(s.plans))
	copy(cp, s.plans)
	return cp, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a PlansSource reading plan definitions from a YAML
// file of the form:
//
//	plans:
//	  - type: basic
//	    name: Basic
//	    price: {amount: 3700, currency: usd}
func NewYAMLSource(path string) PlansSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) ([]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	if len(doc.Plans) == 0 {
		return nil, fmt.Errorf("%w: plans file %s defines no plans", ErrInvalidPlanConfiguration, s.path)
	}

	return doc.Plans, nil
}

// LoadCatalog builds a Catalog from a source in one step.
func LoadCatalog(ctx context.Context, src PlansSource) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(plans)
}
