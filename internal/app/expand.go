package app

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder tokens supported in configured path strings.
const (
	TargetPlaceholder        = "@t" // the chip target
	WildcardPlaceholder      = "@w" // the config name, usually from the sdkconfig rule
	NamePlaceholder          = "@n" // basename of the resolved app directory
	FullNamePlaceholder      = "@f" // app directory with path separators escaped
	IndexPlaceholder         = "@i" // the build index
	ParallelIndexPlaceholder = "@p" // the parallel shard index
	VersionPlaceholder       = "@v" // the IDF version as MAJOR_MINOR_PATCH
)

var envRefRegex = regexp.MustCompile(`\$\{(\w+)\}|\$(\w+)`)

// expand replaces the placeholder tokens in a configured path string. It is
// pure: names were resolved at construction time and the environment lookup
// is injected. Absent tokens are no-ops.
func (a *App) expand(path string) string {
	if path == "" {
		return path
	}

	if a.Index > 0 {
		path = strings.ReplaceAll(path, IndexPlaceholder, strconv.Itoa(a.Index))
	}
	path = strings.ReplaceAll(path, ParallelIndexPlaceholder, strconv.Itoa(a.ParallelIndex))
	if v := underscoredVersion(a.settings.IDFVersion); v != "" {
		path = strings.ReplaceAll(path, VersionPlaceholder, v)
	}
	path = strings.ReplaceAll(path, TargetPlaceholder, a.Target)
	path = strings.ReplaceAll(path, NamePlaceholder, a.name)
	// The escaped full name cannot reintroduce @n, so substituting it after
	// the name token keeps expansion single-pass.
	if strings.Contains(path, FullNamePlaceholder) {
		path = strings.ReplaceAll(path, FullNamePlaceholder, strings.ReplaceAll(a.Dir, string(os.PathSeparator), "_"))
	}

	if pos := strings.Index(path, WildcardPlaceholder); pos != -1 {
		if a.ConfigName != "" {
			path = strings.ReplaceAll(path, WildcardPlaceholder, a.ConfigName)
		} else {
			// No config name: drop the token and the delimiter character
			// to its left so no dangling separator remains.
			left := pos - 1
			if left < 0 {
				left = 0
			}
			path = path[:left] + path[pos+len(WildcardPlaceholder):]
		}
	}

	return expandEnv(path, a.settings.Env)
}

// expandEnv substitutes $VAR and ${VAR} references through the injected
// lookup. Unknown variables are left untouched.
func expandEnv(s string, lookup EnvFunc) string {
	if !strings.Contains(s, "$") {
		return s
	}

	return envRefRegex.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.TrimPrefix(ref, "$")
		name = strings.TrimPrefix(name, "{")
		name = strings.TrimSuffix(name, "}")

		if value, ok := lookup(name); ok {
			return value
		}

		return ref
	})
}

// underscoredVersion turns "5.1.2" into "5_1_2".
func underscoredVersion(version string) string {
	if version == "" {
		return ""
	}

	return strings.ReplaceAll(version, ".", "_")
}
