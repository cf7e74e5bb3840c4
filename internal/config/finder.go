package config

import (
	"os"
	"path/filepath"
)

// configExts are the accepted config file extensions, in lookup order.
var configExts = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig walks from dir up to the filesystem root and returns the
// first .buildmatrix.<ext> file it finds, or an empty string.
func FindLocalConfig(dir string) string {
	for p := dir; ; p = filepath.Dir(p) {
		for _, ext := range configExts {
			candidate := filepath.Join(p, ".buildmatrix."+ext)

			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}

		if filepath.Dir(p) == p {
			return ""
		}
	}
}
