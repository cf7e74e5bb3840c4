// Package logscan classifies build-log lines into errors/warnings and
// applies an ignore-pattern list to separate actionable warnings from
// suppressed noise.
package logscan

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Matches GCC errors and most other fatal build errors and warnings as well.
var errorWarningRegex = regexp.MustCompile(`(?i)(?:error|warning):`)

// Classifier scans log lines for error/warning markers.
type Classifier struct {
	ignores []*regexp.Regexp
}

// NewClassifier creates a classifier with the given ignore regexes.
func NewClassifier(ignores []*regexp.Regexp) *Classifier {
	return &Classifier{ignores: ignores}
}

// CompilePatterns compiles a list of ignore patterns into regexes.
// Empty entries are skipped.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var res []*regexp.Regexp
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}

		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}

		res = append(res, re)
	}

	return res, nil
}

// LoadPatternFile reads ignore patterns from a file, one regex per line.
func LoadPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore pattern file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			patterns = append(patterns, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore pattern file: %w", err)
	}

	return patterns, nil
}

// Classify reports whether the line carries an error/warning marker, and
// if so whether it matches one of the ignore patterns.
func (c *Classifier) Classify(line string) (flagged, ignored bool) {
	if !errorWarningRegex.MatchString(line) {
		return false, false
	}

	for _, re := range c.ignores {
		if re.MatchString(line) {
			return true, true
		}
	}

	return true, false
}
