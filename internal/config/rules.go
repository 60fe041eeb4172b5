package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RewriteRules is the on-disk shape of the query expansion configuration.
// Operators maintain it as a YAML file so topic vocabulary can change
// without a rebuild.
type RewriteRules struct {
	FollowupPhrases []string        `yaml:"followup_phrases"`
	Expansions      []ExpansionRule `yaml:"expansions"`
}

type ExpansionRule struct {
	Triggers []string `yaml:"triggers"`
	Terms    []string `yaml:"terms"`
}

// LoadRewriteRules reads the expansion rule file. An empty path returns
// zero-value rules so callers fall back to built-in defaults.
func LoadRewriteRules(path string) (RewriteRules, error) {
	if path == "" {
		return RewriteRules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RewriteRules{}, fmt.Errorf("read rewrite rules: %w", err)
	}
	var rules RewriteRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RewriteRules{}, fmt.Errorf("parse rewrite rules: %w", err)
	}
	return rules, nil
}
