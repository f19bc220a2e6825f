package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Category is one of the fixed partitions participants compete within.
type Category struct {
	Number         int    `yaml:"number" json:"number"`
	Label          string `yaml:"label" json:"label"`
	WelcomeSubject string `yaml:"welcome_subject" json:"-"`
}

// Criterion is a named jury rubric line.
type Criterion struct {
	Name      string  `yaml:"name" json:"name"`
	MaxPoints float64 `yaml:"max_points" json:"max_points"`
}

// Catalog describes the shape of the competition: how many rounds, which
// categories and how the jury scores.
type Catalog struct {
	Rounds                int         `yaml:"rounds" json:"rounds"`
	DefaultWelcomeSubject string      `yaml:"default_welcome_subject" json:"-"`
	Categories            []Category  `yaml:"categories" json:"categories"`
	Rubric                []Criterion `yaml:"rubric" json:"rubric"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if c.Rounds == 0 {
		c.Rounds = 3
	}
	if c.Rounds < 2 {
		return fmt.Errorf("catalog: at least 2 rounds required, got %d", c.Rounds)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("catalog: no categories defined")
	}
	seen := make(map[int]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Number <= 0 {
			return fmt.Errorf("catalog: category number must be positive, got %d", cat.Number)
		}
		if seen[cat.Number] {
			return fmt.Errorf("catalog: duplicate category %d", cat.Number)
		}
		seen[cat.Number] = true
	}
	names := make(map[string]bool, len(c.Rubric))
	for i, cr := range c.Rubric {
		name := strings.TrimSpace(cr.Name)
		if name == "" {
			return fmt.Errorf("catalog: rubric criterion %d has no name", i)
		}
		if names[name] {
			return fmt.Errorf("catalog: duplicate rubric criterion %q", name)
		}
		if cr.MaxPoints <= 0 {
			return fmt.Errorf("catalog: rubric criterion %q needs positive max_points", name)
		}
		names[name] = true
		c.Rubric[i].Name = name
	}
	return nil
}

// FinalRound is the last round; nobody is promoted out of it.
func (c *Catalog) FinalRound() int { return c.Rounds }

func (c *Catalog) HasCategory(n int) bool {
	_, ok := c.Category(n)
	return ok
}

func (c *Catalog) Category(n int) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Number == n {
			return cat, true
		}
	}
	return Category{}, false
}

// WelcomeSubject picks the category's subject line, falling back to the default.
func (c *Catalog) WelcomeSubject(n int) string {
	if cat, ok := c.Category(n); ok && cat.WelcomeSubject != "" {
		return cat.WelcomeSubject
	}
	if c.DefaultWelcomeSubject != "" {
		return c.DefaultWelcomeSubject
	}
	return "Welcome to Zero Olympiad!"
}
