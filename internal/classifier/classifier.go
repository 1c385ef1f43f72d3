// Package classifier maps CRS rule identifiers to coarse attack categories.
//
// Classification is a static lookup on the first three characters of the rule
// id (the CRS rule file prefix). Unknown prefixes, and rule ids shorter than
// the prefix, fall back to the Generic category.
package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FallbackCategory is returned when no prefix entry matches.
const FallbackCategory = "Generic"

const prefixLen = 3

// crsCategories maps CRS rule file prefixes to attack categories.
var crsCategories = map[string]string{
	"911": "Method Enforcement",
	"913": "Scanner Detection",
	"920": "Protocol Enforcement",
	"921": "Protocol Attack",
	"930": "Local File Inclusion",
	"931": "Remote File Inclusion",
	"932": "Remote Code Execution",
	"933": "PHP Injection",
	"934": "Generic Code Injection",
	"941": "XSS",
	"942": "SQL Injection",
	"943": "Session Fixation",
	"944": "Java Injection",
}

// Classifier resolves rule ids to attack categories. The zero value is not
// usable; construct with New.
type Classifier struct {
	prefixes map[string]string
}

// New returns a classifier backed by the built-in CRS prefix table.
func New() *Classifier {
	prefixes := make(map[string]string, len(crsCategories))
	for p, c := range crsCategories {
		prefixes[p] = c
	}
	return &Classifier{prefixes: prefixes}
}

// NewFromFile returns a classifier with the built-in table merged with
// overrides loaded from a YAML file of the form:
//
//	prefixes:
//	  "999": "Custom Category"
func NewFromFile(path string) (*Classifier, error) {
	c := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier rules: %w", err)
	}

	var file struct {
		Prefixes map[string]string `yaml:"prefixes"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse classifier rules: %w", err)
	}

	for p, cat := range file.Prefixes {
		if len(p) != prefixLen || cat == "" {
			return nil, fmt.Errorf("invalid classifier rule %q: %q", p, cat)
		}
		c.prefixes[p] = cat
	}

	return c, nil
}

// Classify returns the attack category for a rule id. It is deterministic and
// total: any input yields a category.
func (c *Classifier) Classify(ruleID string) string {
	if len(ruleID) < prefixLen {
		return FallbackCategory
	}
	if category, ok := c.prefixes[ruleID[:prefixLen]]; ok {
		return category
	}
	return FallbackCategory
}
