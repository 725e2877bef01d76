package llm

import (
	"fmt"
	"sort"
)

// Tier classifies a model by price.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ModelSpec describes a model's pricing and request ceilings.
type ModelSpec struct {
	Name string `yaml:"name" toml:"name" json:"name"`
	Tier Tier   `yaml:"tier" toml:"tier" json:"tier"`
	// UnitCost is the price in USD of one token, input or output.
	UnitCost          float64 `yaml:"unit_cost" toml:"unit_cost" json:"unit_cost"`
	RequestsPerMinute int     `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
	// RequestsPerDay of zero means no daily quota.
	RequestsPerDay int `yaml:"requests_per_day" toml:"requests_per_day" json:"requests_per_day"`
}

// IsFree reports whether calls to the model cost nothing.
func (m ModelSpec) IsFree() bool {
	return m.Tier == TierFree
}

// Cost returns the price of a call with the given token counts.
func (m ModelSpec) Cost(inputTokens, outputTokens int) float64 {
	if m.IsFree() {
		return 0
	}
	return float64(inputTokens+outputTokens) * m.UnitCost
}

const (
	DefaultPremiumModel = "openai/gpt-4o-mini"
	DefaultFreeModel    = "meta-llama/llama-3.3-70b-instruct:free"
)

// DefaultModels returns the built-in model specs.
func DefaultModels() []ModelSpec {
	return []ModelSpec{
		{
			Name:              DefaultPremiumModel,
			Tier:              TierPremium,
			UnitCost:          0.0000006,
			RequestsPerMinute: 60,
		},
		{
			Name:              DefaultFreeModel,
			Tier:              TierFree,
			RequestsPerMinute: 20,
			RequestsPerDay:    200,
		},
	}
}

// Catalog is the immutable set of models the pipeline may call.
type Catalog struct {
	models  map[string]ModelSpec
	premium string
	free    string
}

// NewCatalog builds a catalog. The premium and free names must be present in
// specs and carry the matching tier.
func NewCatalog(premium, free string, specs []ModelSpec) (*Catalog, error) {
	models := make(map[string]ModelSpec, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("model spec without name")
		}
		if spec.Tier == "" {
			spec.Tier = TierPremium
		}
		if spec.Tier == TierFree {
			spec.UnitCost = 0
		}
		models[spec.Name] = spec
	}

	p, ok := models[premium]
	if !ok {
		return nil, fmt.Errorf("premium model %q: %w", premium, ErrUnknownModel)
	}
	if p.IsFree() {
		return nil, fmt.Errorf("premium model %q is free-tier", premium)
	}
	f, ok := models[free]
	if !ok {
		return nil, fmt.Errorf("free model %q: %w", free, ErrUnknownModel)
	}
	if !f.IsFree() {
		return nil, fmt.Errorf("free model %q is not free-tier", free)
	}

	return &Catalog{models: models, premium: premium, free: free}, nil
}

// DefaultCatalog returns a catalog over DefaultModels.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPremiumModel, DefaultFreeModel, DefaultModels())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the spec for a model name.
func (c *Catalog) Lookup(name string) (ModelSpec, bool) {
	spec, ok := c.models[name]
	return spec, ok
}

// Spec returns the spec for a model name. Unknown models are priced like the
// premium model so that spend is never under-reported.
func (c *Catalog) Spec(name string) ModelSpec {
	if spec, ok := c.models[name]; ok {
		return spec
	}
	spec := c.models[c.premium]
	spec.Name = name
	return spec
}

// Premium returns the default premium model.
func (c *Catalog) Premium() ModelSpec {
	return c.models[c.premium]
}

// Free returns the default free-tier model.
func (c *Catalog) Free() ModelSpec {
	return c.models[c.free]
}

// Cost prices a call to the named model.
func (c *Catalog) Cost(model string, inputTokens, outputTokens int) float64 {
	return c.Spec(model).Cost(inputTokens, outputTokens)
}

// Models lists all specs ordered by name.
func (c *Catalog) Models() []ModelSpec {
	out := make([]ModelSpec, 0, len(c.models))
	for _, spec := range c.models {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
