package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"scouted/discovery-service/internal/model"
	"scouted/discovery-service/internal/relevance"
	"scouted/discovery-service/internal/scoring"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the swappable data side of the pipeline: which sources to visit,
// in what order, and the vocabularies used to filter and score.
type Catalog struct {
	Sources  []model.Source     `yaml:"sources" validate:"required,min=1,dive"`
	Keywords relevance.Keywords `yaml:"keywords"`
	Scoring  scoring.Config     `yaml:"scoring"`
}

// LoadCatalog reads the catalogue at path, or the embedded default when path
// is empty. Empty vocabularies fall back to built-in defaults.
func LoadCatalog(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		raw = b
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates a YAML catalogue.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range c.Sources {
		if c.Sources[i].Policy == "" {
			c.Sources[i].Policy = model.PolicyGeneral
		}
	}
	if err := validator.New().Struct(c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("invalid catalog: duplicate source name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	c.Keywords = c.Keywords.WithDefaults()
	c.Scoring = c.Scoring.WithDefaults()
	return &c, nil
}
