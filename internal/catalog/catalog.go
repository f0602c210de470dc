// Package catalog loads the canonical business terms and table descriptions
// that back the similarity index, and writes them into it.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Term is a canonical business entity. Aliases are alternative spellings a
// user may type; each resolves to Name.
type Term struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
}

// Table describes one warehouse table. The description is what gets embedded,
// so it should read like the questions the table answers.
type Table struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Catalog is the file format read by the index command.
type Catalog struct {
	Terms  []Term  `yaml:"terms"`
	Tables []Table `yaml:"tables"`
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog, trims every field and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	c.trim()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) trim() {
	for i := range c.Terms {
		t := &c.Terms[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Description = strings.TrimSpace(t.Description)
		aliases := t.Aliases[:0]
		for _, a := range t.Aliases {
			if a = strings.TrimSpace(a); a != "" && !strings.EqualFold(a, t.Name) {
				aliases = append(aliases, a)
			}
		}
		t.Aliases = aliases
	}
	for i := range c.Tables {
		c.Tables[i].Name = strings.TrimSpace(c.Tables[i].Name)
		c.Tables[i].Description = strings.TrimSpace(c.Tables[i].Description)
	}
}

// Validate reports every missing name, missing table description and
// duplicate entry in one error.
func (c *Catalog) Validate() error {
	var errs []error
	seenTerms := make(map[string]bool, len(c.Terms))
	for i, t := range c.Terms {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("terms[%d]: name is required", i))
			continue
		}
		key := strings.ToLower(t.Name)
		if seenTerms[key] {
			errs = append(errs, fmt.Errorf("terms[%d]: duplicate term %q", i, t.Name))
		}
		seenTerms[key] = true
	}
	seenTables := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("tables[%d]: name is required", i))
			continue
		}
		if t.Description == "" {
			errs = append(errs, fmt.Errorf("tables[%d]: %s has no description", i, t.Name))
		}
		if seenTables[t.Name] {
			errs = append(errs, fmt.Errorf("tables[%d]: duplicate table %q", i, t.Name))
		}
		seenTables[t.Name] = true
	}
	if len(c.Terms) == 0 && len(c.Tables) == 0 {
		errs = append(errs, errors.New("catalog is empty"))
	}
	return errors.Join(errs...)
}
