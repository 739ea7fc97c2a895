// Package prompt - embedded default template loader. Bakes the built-in
// template set into the binary at compile time, following the teacher's
// go:embed pattern for its own prompt atoms.
package prompt

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates
var embeddedTemplates embed.FS

type templateFile struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// LoadEmbeddedTemplates reads every templates/*.yaml file baked into the
// binary and returns them keyed by template id (the filename without
// extension), matching the ids declared as constants in registry.go.
func LoadEmbeddedTemplates() (map[string]Template, error) {
	templates := make(map[string]Template)

	err := fs.WalkDir(embeddedTemplates, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}

		data, readErr := embeddedTemplates.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("prompt: reading embedded %s: %w", path, readErr)
		}

		var tf templateFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return fmt.Errorf("prompt: parsing embedded %s: %w", path, err)
		}

		id := strings.TrimSuffix(d.Name(), ".yaml")
		templates[id] = Template{System: tf.System, User: tf.User}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// NewDefaultRegistry builds a Registry from the embedded template set.
func NewDefaultRegistry() (*Registry, error) {
	templates, err := LoadEmbeddedTemplates()
	if err != nil {
		return nil, err
	}
	return NewRegistry(templates), nil
}
