package db

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/medcurio/taxonomy-backend/internal/logger"
	"github.com/medcurio/taxonomy-backend/internal/repos"
	"github.com/medcurio/taxonomy-backend/internal/types"
)

type categorySeedFile struct {
	Categories []struct {
		ID          string `yaml:"id"`
		Label       string `yaml:"label"`
		Description string `yaml:"description"`
	} `yaml:"categories"`
}

// LoadCategorySeed parses the fixed category set from a YAML file. Categories
// are bootstrap-only data; nothing mutates them at runtime.
func LoadCategorySeed(path string) ([]*types.Category, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category seed %s: %w", path, err)
	}
	var file categorySeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse category seed %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("category seed %s defines no categories", path)
	}
	out := make([]*types.Category, 0, len(file.Categories))
	seen := make(map[string]bool)
	for _, c := range file.Categories {
		if c.ID == "" || c.Label == "" {
			return nil, fmt.Errorf("category seed %s: id and label are required", path)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("category seed %s: duplicate category id %q", path, c.ID)
		}
		seen[c.ID] = true
		out = append(out, &types.Category{ID: c.ID, Label: c.Label, Description: c.Description})
	}
	return out, nil
}

// SeedCategories inserts the category set, skipping ids that already exist.
func SeedCategories(ctx context.Context, repo repos.CategoryRepo, path string, log *logger.Logger) error {
	rows, err := LoadCategorySeed(path)
	if err != nil {
		return err
	}
	if err := repo.Seed(ctx, nil, rows); err != nil {
		return err
	}
	log.Info("Category seed applied", "path", path, "categories", len(rows))
	return nil
}
