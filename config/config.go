package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry maps one asset filename to the factor its current size is multiplied by.
type Entry struct {
	Name  string
	Scale float64
}

// Entries is an ordered scale table. In YAML it is a mapping of
// filename: factor whose authoring order is kept.
type Entries []Entry

// Config describes one batch run.
type Config struct {
	InputDir  string   `yaml:"input_dir"`
	OutputDir string   `yaml:"output_dir"`
	Entries   Entries  `yaml:"scale_factors"`
	Skip      []string `yaml:"skip"`
}

// Default returns the built-in prop table. The comments give the intended
// real-world size of each prop.
func Default() Config {
	return Config{
		InputDir:  "apps/web/public/models",
		OutputDir: "apps/web/public/models_rescaled",
		Entries: Entries{
			{"Computer-Mouse.glb", 0.1},           // ~0.10m long
			{"Mousepad.glb", 0.3},                 // ~0.35m wide
			{"Mug-supplies.glb", 0.08},            // ~0.08m diameter
			{"Notebook.glb", 0.15},                // ~0.21m (A5)
			{"Pen.glb", 0.12},                     // ~0.14m long
			{"Rubber-Duck.glb", 0.06},             // ~0.06m tall
			{"Soda-Can.glb", 0.12},                // ~0.12m tall
			{"Sticky-notes-pad-thick.glb", 0.075}, // ~0.075m square
			{"Sticky-notes-pad1.glb", 0.075},      // ~0.075m square
			{"Tissue-Box.glb", 0.12},              // ~0.12m wide
			{"Monitor-large.glb", 0.6},            // ~0.60m (24") diagonal
			{"Whiteboard1.glb", 0.9},              // ~0.90m (36") wide
		},
		// already correctly scaled
		Skip: []string{
			"DeskTopPlane.glb",
			"lamp.glb",
			"monitor_processed.glb",
		},
	}
}

// Load reads a YAML config file. Keys missing from the file keep their
// Default() values; a missing file yields Default() unchanged.
func Load(path string) (Config, error) {
	cfg, err := Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Open is like Load but a missing file is an error.
func Open(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes a mapping while keeping key order and rejecting
// duplicate filenames.
func (e *Entries) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: scale_factors must be a mapping of filename to factor", value.Line)
	}
	out := make(Entries, 0, len(value.Content)/2)
	seen := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		var name string
		if err := k.Decode(&name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("line %d: duplicate entry %q", k.Line, name)
		}
		seen[name] = true
		var scale float64
		if err := v.Decode(&scale); err != nil {
			return fmt.Errorf("line %d: %s: %w", v.Line, name, err)
		}
		out = append(out, Entry{Name: name, Scale: scale})
	}
	*e = out
	return nil
}

// MarshalYAML writes the table back as an ordered mapping.
func (e Entries) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, en := range e {
		var k, v yaml.Node
		if err := k.Encode(en.Name); err != nil {
			return nil, err
		}
		if err := v.Encode(en.Scale); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &k, &v)
	}
	return node, nil
}

// Validate checks that directories are set, every filename is unique and
// non-empty and every factor is a finite positive number.
func (c Config) Validate() error {
	var errs []error
	if c.InputDir == "" {
		errs = append(errs, errors.New("input_dir is empty"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is empty"))
	}
	seen := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("entry %d: empty filename", i))
			continue
		}
		if seen[e.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate entry", e.Name))
		}
		seen[e.Name] = true
		if !(e.Scale > 0) || math.IsInf(e.Scale, 0) {
			errs = append(errs, fmt.Errorf("%s: scale factor must be positive, got %v", e.Name, e.Scale))
		}
	}
	return errors.Join(errs...)
}

// Skipped reports whether name is on the skip list.
func (c Config) Skipped(name string) bool {
	for _, s := range c.Skip {
		if s == name {
			return true
		}
	}
	return false
}

// Pending returns the entries that will be processed, in order.
func (c Config) Pending() Entries {
	out := make(Entries, 0, len(c.Entries))
	for _, e := range c.Entries {
		if !c.Skipped(e.Name) {
			out = append(out, e)
		}
	}
	return out
}

// Save writes the config as YAML.
func Save(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
