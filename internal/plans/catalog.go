// Package plans holds the static plan catalog. The catalog is loaded once at
// startup and is read-only afterwards.
package plans

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultCatalog []byte

const unknownPlanName = "unknown plan"

type Plan struct {
	ID           string  `yaml:"id" validate:"required,max=50"`
	Name         string  `yaml:"name" validate:"required"`
	DurationDays int     `yaml:"duration_days" validate:"gt=0"`
	Price        float64 `yaml:"price" validate:"gte=0"`
	Devices      int     `yaml:"devices" validate:"gt=0"`
	Discount     string  `yaml:"discount"`
	Description  string  `yaml:"description"`
	Trial        bool    `yaml:"trial"`
}

func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// Catalog is safe for concurrent reads.
type Catalog struct {
	plans []Plan
	byID  map[string]int
}

type catalogFile struct {
	Plans []Plan `yaml:"plans" validate:"required,min=1,dive"`
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read plans file: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plans: %w", err)
	}
	return New(file.Plans)
}

func New(list []Plan) (*Catalog, error) {
	if err := validator.New().Struct(catalogFile{Plans: list}); err != nil {
		return nil, fmt.Errorf("invalid plan catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(list))}
	trials := 0
	for _, p := range list {
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if p.Trial {
			trials++
			if p.Price != 0 {
				return nil, fmt.Errorf("trial plan %q must be free", p.ID)
			}
		}
		c.byID[p.ID] = len(c.plans)
		c.plans = append(c.plans, p)
	}
	if trials > 1 {
		return nil, fmt.Errorf("catalog has %d trial plans, at most one allowed", trials)
	}
	return c, nil
}

func (c *Catalog) Get(id string) (Plan, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Plan{}, false
	}
	return c.plans[i], true
}

func (c *Catalog) Trial() (Plan, bool) {
	for _, p := range c.plans {
		if p.Trial {
			return p, true
		}
	}
	return Plan{}, false
}

// Paid returns purchasable plans in catalog order.
func (c *Catalog) Paid() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		if !p.Trial {
			out = append(out, p)
		}
	}
	return out
}

// DisplayName tolerates stale plan ids left over from catalog edits.
func (c *Catalog) DisplayName(id string) string {
	if p, ok := c.Get(id); ok {
		return p.Name
	}
	return unknownPlanName
}
