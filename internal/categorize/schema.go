package categorize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Fallback values for answers outside the schema.
const (
	Uncategorized = "Uncategorized"
	Unclassified  = "Unclassified"
)

// Category is a top-level category and its allowed sub-categories.
type Category struct {
	Name          string   `yaml:"name" toml:"name"`
	SubCategories []string `yaml:"sub_categories,omitempty" toml:"sub_categories"`
}

// Schema is the closed vocabulary projects are classified into.
type Schema struct {
	Categories []Category `yaml:"categories" toml:"categories"`
	Scopes     []string   `yaml:"scopes" toml:"scopes"`
}

// DefaultSchema is used when no schema file is configured.
func DefaultSchema() *Schema {
	return &Schema{
		Categories: []Category{
			{Name: "Oil & Gas", SubCategories: []string{"Upstream", "Midstream", "Downstream"}},
			{Name: "Energy Transition", SubCategories: []string{"Carbon Capture", "Hydrogen", "Renewables", "Battery Storage"}},
			{Name: "Infrastructure", SubCategories: []string{"Water", "Transportation", "Buildings"}},
			{Name: "Mining", SubCategories: []string{"Processing", "Tailings"}},
			{Name: "Digital", SubCategories: []string{"Software", "Automation", "Data"}},
		},
		Scopes: []string{"Feasibility Study", "Front End Engineering Design", "Detailed Engineering", "Construction", "Operations Support"},
	}
}

// LoadSchema reads a schema file. Files ending in .toml are parsed as TOML,
// everything else as YAML.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read categorization schema: %w", err)
	}
	var s Schema
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse categorization schema %s: %w", path, err)
	}
	if len(s.Categories) == 0 {
		return nil, fmt.Errorf("categorization schema %s defines no categories", path)
	}
	return &s, nil
}

// Normalize maps a model answer onto the schema. Unknown categories become
// Uncategorized, unknown sub-categories are cleared and unknown scopes
// become Unclassified. Matching ignores case and returns the schema spelling.
func (s *Schema) Normalize(category, subCategory, scope string) (string, string, string) {
	cat, ok := s.category(category)
	if !ok {
		return Uncategorized, "", s.scope(scope)
	}
	sub := ""
	for _, c := range cat.SubCategories {
		if strings.EqualFold(c, strings.TrimSpace(subCategory)) {
			sub = c
			break
		}
	}
	return cat.Name, sub, s.scope(scope)
}

func (s *Schema) category(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range s.Categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Category{}, false
}

func (s *Schema) scope(name string) string {
	name = strings.TrimSpace(name)
	for _, sc := range s.Scopes {
		if strings.EqualFold(sc, name) {
			return sc
		}
	}
	return Unclassified
}
