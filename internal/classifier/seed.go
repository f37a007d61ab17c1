package classifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout used by import and export:
//
//	categories:
//	  Social: [discord, telegram]
//	  Utility: [code]
type SeedFile struct {
	Categories map[string][]string `yaml:"categories"`
}

// LoadSeedFile reads a YAML seed file into an app -> category map.
func LoadSeedFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

// DecodeSeed parses the YAML seed layout. An application listed under two
// categories keeps the later one in sorted category order.
func DecodeSeed(r io.Reader) (map[string]string, error) {
	var seed SeedFile
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		if err == io.EOF {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	names := make([]string, 0, len(seed.Categories))
	for name := range seed.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string)
	for _, category := range names {
		for _, app := range seed.Categories[category] {
			if app == "" {
				continue
			}
			out[app] = category
		}
	}
	return out, nil
}

// Apply assigns every entry of seed. It stops at the first persistence error.
func (c *Classifier) Apply(ctx context.Context, seed map[string]string) (int, error) {
	apps := make([]string, 0, len(seed))
	for app := range seed {
		apps = append(apps, app)
	}
	sort.Strings(apps)

	applied := 0
	for _, app := range apps {
		if err := c.Assign(ctx, app, seed[app]); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Export writes the current assignments in the seed layout.
func (c *Classifier) Export(w io.Writer) error {
	seed := SeedFile{Categories: make(map[string][]string)}
	for app, category := range c.Assignments() {
		seed.Categories[category] = append(seed.Categories[category], app)
	}
	for _, apps := range seed.Categories {
		sort.Strings(apps)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&seed); err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	return enc.Close()
}
