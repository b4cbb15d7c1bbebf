package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"

	"github.com/attachflow/attachflow/internal/types"
)

// LoadTemplates loads the shared rule templates from templatesDir. A missing
// directory is fine; templates are optional.
func LoadTemplates(templatesDir string) (map[string]*types.Rule, error) {
	templates := make(map[string]*types.Rule)

	entries, err := os.ReadDir(templatesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return templates, nil
		}
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(templatesDir, entry.Name())
		template := &types.Rule{}
		if err := loadYAML(path, template); err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", entry.Name(), err)
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		templates[name] = template
	}

	return templates, nil
}

// ApplyTemplate merges the rule's named template into the rule: values set on
// the rule win, everything else is filled from the template.
func ApplyTemplate(rule *types.Rule, templates map[string]*types.Rule) error {
	template, exists := templates[rule.Defaults]
	if !exists {
		return fmt.Errorf("template %q not found", rule.Defaults)
	}

	base := &types.Rule{}
	if err := mergo.Merge(base, template); err != nil {
		return fmt.Errorf("failed to copy template: %w", err)
	}
	if err := mergo.Merge(base, rule, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge rule with template: %w", err)
	}

	*rule = *base
	return nil
}
