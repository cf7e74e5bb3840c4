package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edgefw/buildmatrix/internal/manifest"
	"github.com/edgefw/buildmatrix/internal/runner"
)

// cmakeProjectLine identifies a CMake-based project CMakeLists.txt. There is
// no equivalent of 'idf_component_register' for project files; this seems to
// be the best option.
const cmakeProjectLine = `include($ENV{IDF_PATH}/tools/cmake/project.cmake)`

// projectDescriptionJSON is generated by an `idf.py reconfigure` and lists
// the components the variant actually builds.
const projectDescriptionJSON = "project_description.json"

// Sdkconfig keys extracted from the defaults and passed to CMake instead.
var sdkconfigTestOpts = map[string]bool{
	"EXCLUDE_COMPONENTS":      true,
	"TEST_EXCLUDE_COMPONENTS": true,
	"TEST_COMPONENTS":         true,
}

// Sdkconfig keys dropped from the defaults with no side effect.
var sdkconfigIgnoreOpts = map[string]bool{
	"TEST_GROUPS": true,
}

type cmakeSystem struct{}

// NewCMakeApp creates an App driven by the CMake-based toolchain.
func NewCMakeApp(dir, target string, settings *Settings, opts Options) (*App, error) {
	return newApp(dir, target, cmakeSystem{}, settings, opts)
}

// IsCMakeApp reports whether the directory is a valid CMake-based project.
func IsCMakeApp(dir string) bool {
	content, err := os.ReadFile(filepath.Join(dir, "CMakeLists.txt"))
	if err != nil || len(content) == 0 {
		return false
	}

	return strings.Contains(string(content), cmakeProjectLine)
}

func (cmakeSystem) name() string {
	return "cmake"
}

func (cmakeSystem) fallbackTargets() []string {
	return manifest.DefaultBuildTargets
}

func (cmakeSystem) routeSdkconfigKey(key string) keyRoute {
	switch {
	case sdkconfigTestOpts[key]:
		return routeInject
	case sdkconfigIgnoreOpts[key]:
		return routeDrop
	default:
		return routeKeep
	}
}

func (s cmakeSystem) run(a *App, logfile *os.File, opts BuildOptions) (bool, error) {
	// IDF_TARGET bypasses the idf.py target check.
	extraEnv := map[string]string{
		"IDF_TARGET": a.Target,
	}

	idfPy := filepath.Join(a.settings.IDFPath, "tools", "idf.py")

	sdkconfigDefaults := ";"
	if len(a.sdkconfigFiles) > 0 {
		sdkconfigDefaults = strings.Join(a.sdkconfigFiles, ";")
	}

	commonArgs := []string{
		idfPy,
		"-B", a.BuildPath(),
		"-C", a.WorkDir(),
		"-DIDF_TARGET=" + a.Target,
		// Set to ";" to disable the implicit default when the list is empty.
		"-DSDKCONFIG_DEFAULTS=" + sdkconfigDefaults,
	}

	runnerOpts := runner.Options{
		ExtraEnv: extraEnv,
		LogSink:  logfile,
		Terminal: a.BuildLogPath() == "",
	}

	a.CheckShouldBuild(opts)

	// An Unknown verdict with dependency data available is resolved
	// empirically: a cheap reconfigure-only invocation declares the
	// component set this variant actually builds.
	if opts.ModifiedComponents != nil && opts.CheckAppDependencies && a.shouldBuild == Unknown {
		if err := runCommand(a.settings.Python, append(append([]string{}, commonArgs...), "reconfigure"), runnerOpts); err != nil {
			return false, err
		}

		buildComponents, err := readBuildComponents(filepath.Join(a.BuildPath(), projectDescriptionJSON))
		if err != nil {
			return false, err
		}

		if !intersects(buildComponents, opts.ModifiedComponents) {
			slog.Info("Skip building, no modified component is built",
				"app", a.String(),
				"build_components", strings.Join(buildComponents, ","),
				"modified_components", strings.Join(opts.ModifiedComponents, ","))
			return false, nil
		}

		a.shouldBuild = Yes
	}

	if a.shouldBuild == No {
		slog.Info("Skip building", "app", a.String())
		return false, nil
	}

	buildArgs := append([]string{}, commonArgs...)

	if len(a.buildVars) > 0 {
		keys := make([]string, 0, len(a.buildVars))
		for k := range a.buildVars {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			buildArgs = append(buildArgs, fmt.Sprintf("-D%s=%s", k, a.buildVars[k]))
		}

		if _, ok := a.buildVars["TEST_EXCLUDE_COMPONENTS"]; ok {
			if _, ok := a.buildVars["TEST_COMPONENTS"]; !ok {
				buildArgs = append(buildArgs, "-DTESTS_ALL=1")
			}
		}

		// With secure boot enabled the bootloader is not built implicitly.
		if _, ok := a.buildVars["CONFIG_APP_BUILD_BOOTLOADER"]; ok {
			buildArgs = append(buildArgs, "bootloader")
		}
	}

	buildArgs = append(buildArgs, "build")
	if a.Verbose {
		buildArgs = append(buildArgs, "-v")
	}

	if err := runCommand(a.settings.Python, buildArgs, runnerOpts); err != nil {
		return false, err
	}

	return true, nil
}

// readBuildComponents extracts the non-empty build_components entries from a
// project description file.
func readBuildComponents(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project description: %w", err)
	}

	var desc struct {
		BuildComponents []string `json:"build_components"`
	}
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse project description: %w", err)
	}

	var components []string
	for _, c := range desc.BuildComponents {
		if c != "" {
			components = append(components, c)
		}
	}

	return components, nil
}
