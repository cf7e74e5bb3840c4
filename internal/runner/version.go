package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var versionRegex = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// DetectIDFVersion attempts to detect the active ESP-IDF version.
// The ESP_IDF_VERSION environment variable takes precedence; otherwise
// `idf.py --version` is probed. This is best-effort and returns an empty
// string if detection fails.
func DetectIDFVersion(python, idfPy string) string {
	if v := os.Getenv("ESP_IDF_VERSION"); v != "" {
		return normalizeVersion(v)
	}

	if idfPy == "" {
		return ""
	}

	cmd := execCommand(python, idfPy, "--version")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	// Expected format examples:
	//   ESP-IDF v5.1.2
	//   ESP-IDF v4.4-dev-1594-g1d7068e4b
	return parseIDFVersion(string(output))
}

// parseIDFVersion extracts the numeric version from idf.py version output.
func parseIDFVersion(output string) string {
	matches := versionRegex.FindStringSubmatch(output)
	if len(matches) >= 2 {
		return normalizeVersion(matches[1])
	}

	return ""
}

// normalizeVersion pads a MAJOR.MINOR version to MAJOR.MINOR.PATCH.
func normalizeVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")

	matches := versionRegex.FindStringSubmatch(v)
	if len(matches) < 2 {
		return ""
	}

	v = matches[1]
	if strings.Count(v, ".") == 1 {
		v += ".0"
	}

	return v
}

// LookIDFPy returns the idf.py path under IDF_PATH, or an empty string if
// IDF_PATH is not set and idf.py is not on PATH.
func LookIDFPy() string {
	if idfPath := os.Getenv("IDF_PATH"); idfPath != "" {
		return filepath.Join(idfPath, "tools", "idf.py")
	}

	if path, err := exec.LookPath("idf.py"); err == nil {
		return path
	}

	return ""
}
