package catalog

import (
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// fileCatalog is the on-disk shape of a catalog document.
type fileCatalog struct {
	Services []fileService `yaml:"services"`
}

type fileService struct {
	Name    string      `yaml:"name"`
	Type    string      `yaml:"type"`
	Configs configsNode `yaml:"configs"`
}

// configsNode decodes a YAML mapping while preserving key order, which the
// generic map[string]string decoder would discard.
type configsNode struct {
	m *orderedmap.OrderedMap[string, string]
}

func (c *configsNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("configs must be a mapping (line %d)", value.Line)
	}
	m := orderedmap.New[string, string](len(value.Content) / 2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode {
			return fmt.Errorf("configs entries must be scalar key/value pairs (line %d)", key.Line)
		}
		m.Set(key.Value, val.Value)
	}
	c.m = m
	return nil
}

// LoadFile reads a catalog document from path and validates it.
func LoadFile(path string) ([]Service, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	services := make([]Service, 0, len(doc.Services))
	for _, entry := range doc.Services {
		configs := entry.Configs.m
		if configs == nil {
			configs = orderedmap.New[string, string]()
		}
		services = append(services, Service{
			Name:    entry.Name,
			Type:    entry.Type,
			Configs: configs,
		})
	}

	if err := Validate(services); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return services, nil
}

// Load returns the catalog from path, or the built-in development catalog
// when path is empty.
func Load(path string) ([]Service, error) {
	if path == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}
