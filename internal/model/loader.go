package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"DocrestAPI/internal/logger"

	"gopkg.in/yaml.v3"
)

// LoadModelsFromDir registers one model per *.yml file in dir. The file
// name is the model name.
func (r *Registry) LoadModelsFromDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return err
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		m, err := ParseModel(name, data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := r.Register(m); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("model_loaded", map[string]any{
			"model":          name,
			"collection":     m.Collection,
			"fields":         len(m.Fields),
			"discriminators": len(m.Discriminators),
		})
	}
	return nil
}

// ParseModel validates and decodes one model definition.
func ParseModel(name string, data []byte) (*Model, error) {
	// structural check first, on the raw node tree
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty YAML")
	}
	if err := validateYAMLNode(root.Content[0], "model"); err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	var m Model
	if err := root.Decode(&m); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	m.Name = name
	if m.Collection == "" {
		m.Collection = strings.ToLower(name) + "s"
	}
	return &m, nil
}
