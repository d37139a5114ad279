// Package presets holds the catalog of encoder presets users can pick from.
package presets

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"thirdcoast.systems/mediaportal/internal/media"
)

// Categories of the default catalog.
const (
	CategoryAudio     = "Audio Coding Standard"
	CategoryThumbnail = "Thumbnail"
	CategoryVC1       = "VC-1 Coding Standard"
	CategoryH264      = "H.264 Coding Standard"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var _ media.PresetResolver = (*Catalog)(nil)

var ErrUnknownPreset = errors.New("unknown encoding preset")

type Preset struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description,omitempty"`
	ConfigFile  string `yaml:"config" json:"-"`
}

type Category struct {
	Name    string   `yaml:"name" json:"name"`
	Presets []Preset `yaml:"presets" json:"presets"`
}

type catalogFile struct {
	Categories []Category `yaml:"categories"`
	Protection struct {
		PlayReady string `yaml:"playready"`
	} `yaml:"protection"`
}

// Catalog resolves preset ids to task configurations. It is read only after
// construction and safe for concurrent use.
type Catalog struct {
	categories []Category
	index      map[string]Preset
	configDir  string
	playReady  string
}

// Load reads the catalog at path, or the built in catalog when path is
// empty. Configuration files are resolved relative to configDir.
func Load(path, configDir string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read preset catalog: %w", err)
		}
		data = b
	}
	return Parse(data, configDir)
}

func Parse(data []byte, configDir string) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse preset catalog: %w", err)
	}

	c := &Catalog{
		categories: f.Categories,
		index:      make(map[string]Preset),
		configDir:  configDir,
		playReady:  f.Protection.PlayReady,
	}
	for _, cat := range f.Categories {
		if cat.Name == "" {
			return nil, errors.New("parse preset catalog: category without a name")
		}
		for _, p := range cat.Presets {
			if p.ID == "" {
				return nil, fmt.Errorf("parse preset catalog: preset without an id in %q", cat.Name)
			}
			if _, dup := c.index[p.ID]; dup {
				return nil, fmt.Errorf("parse preset catalog: duplicate preset %q", p.ID)
			}
			c.index[p.ID] = p
		}
	}
	return c, nil
}

func (c *Catalog) HasPreset(id string) bool {
	_, ok := c.index[id]
	return ok
}

// PresetConfiguration returns the contents of the preset's configuration
// file, or the id itself for presets the service knows by name.
func (c *Catalog) PresetConfiguration(id string) (string, error) {
	p, ok := c.index[id]
	if !ok {
		return id, nil
	}
	if p.ConfigFile == "" {
		return id, nil
	}
	return c.readConfig(p.ConfigFile)
}

// ProtectionConfiguration returns the task configuration of the encryption
// step for p. Only envelope encryption needs one.
func (c *Catalog) ProtectionConfiguration(p media.Protection) (string, error) {
	if p != media.ProtectionEnvelopeEncryption {
		return "", nil
	}
	if c.playReady == "" {
		return "", errors.New("no PlayReady configuration in the preset catalog")
	}
	return c.readConfig(c.playReady)
}

func (c *Catalog) readConfig(name string) (string, error) {
	if c.configDir == "" {
		return "", fmt.Errorf("configuration file %s requires PRESET_CONFIG_DIR", name)
	}
	b, err := os.ReadFile(filepath.Join(c.configDir, filepath.Base(name)))
	if err != nil {
		return "", fmt.Errorf("read preset configuration: %w", err)
	}
	return string(b), nil
}

// Categories returns the category names in catalog order.
func (c *Catalog) Categories() []string {
	names := make([]string, 0, len(c.categories))
	for _, cat := range c.categories {
		names = append(names, cat.Name)
	}
	return names
}

// Presets returns the presets of one category, nil for unknown categories.
func (c *Catalog) Presets(category string) []Preset {
	for _, cat := range c.categories {
		if cat.Name == category {
			return append([]Preset(nil), cat.Presets...)
		}
	}
	return nil
}

// Tree returns every category with its presets.
func (c *Catalog) Tree() []Category {
	tree := make([]Category, 0, len(c.categories))
	for _, cat := range c.categories {
		tree = append(tree, Category{Name: cat.Name, Presets: append([]Preset(nil), cat.Presets...)})
	}
	return tree
}

// ParseList splits a list of preset ids posted by the preset picker. Only
// the first character of delimiter is used; blank entries are dropped.
func ParseList(s, delimiter string) []string {
	if delimiter == "" {
		delimiter = ","
	}
	sep := delimiter[:1]

	var ids []string
	for _, part := range strings.Split(s, sep) {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
