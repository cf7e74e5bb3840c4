// Package manifest maps project folders to their supported chip targets and
// dependency declarations (component names, file patterns).
//
// Rules are declared in YAML files keyed by folder path:
//
//	examples/wifi:
//	  enable: [esp32, esp32s3]
//	  test: [esp32]
//	  depends_components: [esp_wifi]
//	  depends_filepatterns: ["components/esp_wifi/**/*"]
//
// Folder paths are resolved relative to the manifest root. A rule applies to
// its folder and everything beneath it; the most specific rule wins.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBuildTargets is the fallback list used when neither a manifest rule
// nor an sdkconfig-declared target selects the supported targets.
var DefaultBuildTargets = []string{
	"esp32",
	"esp32s2",
	"esp32s3",
	"esp32c2",
	"esp32c3",
	"esp32c6",
	"esp32h2",
}

// FolderRule declares targets and dependencies for one folder subtree.
type FolderRule struct {
	Enable              []string `yaml:"enable"`
	Test                []string `yaml:"test"`
	DependsComponents   []string `yaml:"depends_components"`
	DependsFilepatterns []string `yaml:"depends_filepatterns"`
}

// Manifest holds folder rules, keyed by absolute folder path.
type Manifest struct {
	rootPath string
	rules    map[string]*FolderRule
}

// Load reads one or more manifest files and merges their rules. Later files
// override earlier rules for the same folder. rootPath anchors relative
// folder keys and dependency file patterns.
func Load(rootPath string, paths ...string) (*Manifest, error) {
	absRoot, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest root path: %w", err)
	}

	m := &Manifest{
		rootPath: absRoot,
		rules:    make(map[string]*FolderRule),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest file: %w", err)
		}

		var rules map[string]*FolderRule
		if err := yaml.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("failed to parse manifest file %s: %w", path, err)
		}

		for folder, rule := range rules {
			if rule == nil {
				rule = &FolderRule{}
			}

			if !filepath.IsAbs(folder) {
				folder = filepath.Join(absRoot, folder)
			}

			m.rules[filepath.Clean(folder)] = rule
		}
	}

	return m, nil
}

// RootPath returns the manifest root, against which dependency file patterns
// are matched.
func (m *Manifest) RootPath() string {
	return m.rootPath
}

// DependsComponents returns the component names the folder depends on.
func (m *Manifest) DependsComponents(appDir string) []string {
	if rule := m.lookup(appDir); rule != nil {
		return rule.DependsComponents
	}

	return nil
}

// DependsFilepatterns returns the dependency file patterns for the folder,
// relative to the manifest root.
func (m *Manifest) DependsFilepatterns(appDir string) []string {
	if rule := m.lookup(appDir); rule != nil {
		return rule.DependsFilepatterns
	}

	return nil
}

// EnableBuildTargets returns the targets the folder should be built for.
// Falls back to the sdkconfig-declared target, then the default list.
func (m *Manifest) EnableBuildTargets(appDir, declaredTarget, _ string) []string {
	if rule := m.lookup(appDir); rule != nil && len(rule.Enable) > 0 {
		return rule.Enable
	}

	if declaredTarget != "" {
		return []string{declaredTarget}
	}

	return DefaultBuildTargets
}

// EnableTestTargets returns the targets the folder is verified on.
func (m *Manifest) EnableTestTargets(appDir, _, _ string) []string {
	if rule := m.lookup(appDir); rule != nil {
		return rule.Test
	}

	return nil
}

// lookup returns the most specific rule covering appDir, or nil.
func (m *Manifest) lookup(appDir string) *FolderRule {
	dir, err := filepath.Abs(appDir)
	if err != nil {
		return nil
	}

	dir = filepath.Clean(dir)
	for {
		if rule, ok := m.rules[dir]; ok {
			return rule
		}

		parent := filepath.Dir(dir)
		if parent == dir || !strings.HasPrefix(dir, m.rootPath) {
			return nil
		}

		dir = parent
	}
}
