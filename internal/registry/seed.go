package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/starford/attune/internal/models"
)

// seedFile is the YAML layout of a seed document.
type seedFile struct {
	Targets []models.TargetInput `yaml:"targets"`
}

// LoadSeed decodes the target definitions in a YAML seed file.
func LoadSeed(path string) ([]models.TargetInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: read seed %s: %w", path, err)
	}
	var doc seedFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("registry: parse seed %s: %w", path, err)
	}
	return doc.Targets, nil
}

// Seed registers inputs when the registry is empty and reports how many
// targets were created. Invalid entries are logged and skipped.
func (r *Registry) Seed(ctx context.Context, inputs []models.TargetInput) (int, error) {
	if r.Len() > 0 {
		return 0, nil
	}
	created := 0
	for _, in := range inputs {
		t, err := r.Create(ctx, in)
		if err != nil {
			r.logger.Warn("registry: seed entry rejected",
				slog.String("name", in.Name),
				slog.String("error", err.Error()))
			continue
		}
		r.logger.Debug("registry: seeded", slog.String("target_id", t.ID), slog.String("name", t.Name))
		created++
	}
	return created, nil
}
