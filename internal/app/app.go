// Package app implements the build-decision and build-lifecycle engine.
//
// One App represents one buildable (directory, target, sdkconfig-variant)
// tuple. It resolves placeholder-driven paths, normalizes sdkconfig input
// files, decides whether the variant must be rebuilt, and supervises the
// toolchain invocation including log classification, size reporting and
// build-directory cleanup. Two build-system variants are supported: the
// legacy make-based one and the CMake-based one.
package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgefw/buildmatrix/internal/manifest"
)

// EnvFunc looks up an environment variable. Injected so that path expansion
// and sdkconfig processing stay testable.
type EnvFunc func(string) (string, bool)

// Settings carries the run-wide collaborators shared by all App instances of
// a single build-matrix run.
type Settings struct {
	// Manifest answers dependency and target queries. Nil applies the
	// defaults: empty dependency sets and the default target list.
	Manifest *manifest.Manifest

	// IgnoreWarnings are the log-classification ignore patterns.
	IgnoreWarnings []*regexp.Regexp

	// Python is the interpreter used to run the IDF helper scripts.
	Python string

	// IDFPath is the ESP-IDF checkout, used to locate idf.py and
	// idf_size.py.
	IDFPath string

	// IDFVersion is the active toolchain version (e.g. "5.1.2"). Empty
	// when detection failed.
	IDFVersion string

	// LogDebugLines is how many trailing log lines to emit when a build
	// fails.
	LogDebugLines int

	// Env is the environment lookup. Defaults to os.LookupEnv.
	Env EnvFunc
}

const defaultLogDebugLines = 25

func (s *Settings) withDefaults() *Settings {
	if s == nil {
		s = &Settings{}
	}

	out := *s
	if out.Python == "" {
		out.Python = "python3"
	}
	if out.LogDebugLines <= 0 {
		out.LogDebugLines = defaultLogDebugLines
	}
	if out.Env == nil {
		out.Env = os.LookupEnv
	}

	return &out
}

// Options carries the raw, possibly template-containing inputs for one App.
type Options struct {
	// WorkDir is where the app is copied to before building. Empty means
	// build in place.
	WorkDir string

	// BuildDir is the build directory, relative to the work directory
	// unless absolute. Defaults to "build".
	BuildDir string

	// BuildLogPath, relative to the build path, receives the toolchain
	// output when set.
	BuildLogPath string

	// SizeJSONPath, relative to the build path, receives the size report
	// when set.
	SizeJSONPath string

	// ConfigName labels the sdkconfig variant, if any.
	ConfigName string

	// SdkconfigPath is an extra sdkconfig file appended after the
	// defaults.
	SdkconfigPath string

	// SdkconfigDefaults overrides the default candidate list, entries
	// separated by ';'. Falls back to $SDKCONFIG_DEFAULTS, then
	// "sdkconfig.defaults".
	SdkconfigDefaults string

	DryRun        bool
	Verbose       bool
	CheckWarnings bool
	Preserve      bool

	// Index is the build index, starting at 1. Zero means unassigned.
	Index int

	ParallelIndex int
	ParallelCount int
}

// App is one buildable unit.
type App struct {
	// Dir is the app source directory.
	Dir string

	// Target is the chip identifier.
	Target string

	// ConfigName is the optional sdkconfig-variant label.
	ConfigName string

	// SdkconfigPath is the optional sdkconfig overlay file.
	SdkconfigPath string

	DryRun        bool
	Verbose       bool
	CheckWarnings bool
	Preserve      bool

	Index         int
	ParallelIndex int
	ParallelCount int

	// Raw template-containing path strings; the public accessors expand
	// them on every call.
	workDirTpl   string
	buildDirTpl  string
	buildLogTpl  string
	sizeJSONTpl  string
	sdkDefaults  string

	name string

	shouldBuild            BuildOrNot
	sdkconfigFiles         []string
	sdkconfigDefinedTarget string

	// Sdkconfig keys routed to build-time variable injection (CMake only).
	buildVars map[string]string

	settings *Settings
	system   buildSystem
}

// buildSystem supplies the toolchain-variant specifics: the command sequence
// issued by a build and the sdkconfig key routing.
type buildSystem interface {
	name() string
	fallbackTargets() []string
	routeSdkconfigKey(key string) keyRoute
	run(a *App, logfile *os.File, opts BuildOptions) (bool, error)
}

type keyRoute int

const (
	routeKeep keyRoute = iota
	routeInject
	routeDrop
)

func newApp(dir, target string, system buildSystem, settings *Settings, opts Options) (*App, error) {
	if opts.ParallelIndex <= 0 {
		opts.ParallelIndex = 1
	}
	if opts.ParallelCount <= 0 {
		opts.ParallelCount = 1
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = dir
	}

	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}

	a := &App{
		Dir:           dir,
		Target:        target,
		ConfigName:    opts.ConfigName,
		SdkconfigPath: opts.SdkconfigPath,
		DryRun:        opts.DryRun,
		Verbose:       opts.Verbose,
		CheckWarnings: opts.CheckWarnings,
		Preserve:      opts.Preserve,
		Index:         opts.Index,
		ParallelIndex: opts.ParallelIndex,
		ParallelCount: opts.ParallelCount,
		workDirTpl:    workDir,
		buildDirTpl:   buildDir,
		buildLogTpl:   opts.BuildLogPath,
		sizeJSONTpl:   opts.SizeJSONPath,
		sdkDefaults:   opts.SdkconfigDefaults,
		name:          resolveName(dir),
		shouldBuild:   Unknown,
		buildVars:     make(map[string]string),
		settings:      settings.withDefaults(),
		system:        system,
	}

	if err := a.processSdkconfigFiles(); err != nil {
		return nil, err
	}

	return a, nil
}

// resolveName returns the basename of the symlink-resolved directory.
func resolveName(dir string) string {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		resolved = dir
	}

	return filepath.Base(resolved)
}

// BuildSystem returns the toolchain-variant name ("make" or "cmake").
func (a *App) BuildSystem() string {
	return a.system.name()
}

// Name is the basename of the resolved app directory.
func (a *App) Name() string {
	return a.name
}

// WorkDir is the directory the app is copied to prior to the build.
func (a *App) WorkDir() string {
	return a.expand(a.workDirTpl)
}

// BuildDir is the build directory, relative to the work directory unless
// absolute.
func (a *App) BuildDir() string {
	return a.expand(a.buildDirTpl)
}

// BuildPath is the absolute, normalized build directory path.
func (a *App) BuildPath() string {
	buildDir := a.BuildDir()
	if filepath.IsAbs(buildDir) {
		return filepath.Clean(buildDir)
	}

	joined := filepath.Join(a.WorkDir(), buildDir)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return filepath.Clean(joined)
	}

	return abs
}

// BuildLogPath is the resolved build-log location, or empty when no
// persistent log was requested.
func (a *App) BuildLogPath() string {
	return a.joinBuildPath(a.buildLogTpl)
}

// SizeJSONPath is the resolved size-report location, or empty when no size
// report was requested.
func (a *App) SizeJSONPath() string {
	return a.joinBuildPath(a.sizeJSONTpl)
}

func (a *App) joinBuildPath(tpl string) string {
	if tpl == "" {
		return ""
	}

	expanded := a.expand(tpl)
	if filepath.IsAbs(expanded) {
		return expanded
	}

	return filepath.Join(a.BuildPath(), expanded)
}

// SdkconfigFiles is the ordered list of normalized sdkconfig files passed to
// the toolchain.
func (a *App) SdkconfigFiles() []string {
	return a.sdkconfigFiles
}

// SdkconfigDefinedTarget is the chip target declared inside the sdkconfig
// files, if any.
func (a *App) SdkconfigDefinedTarget() string {
	return a.sdkconfigDefinedTarget
}

// DependsComponents returns the app's declared dependency components.
func (a *App) DependsComponents() []string {
	if a.settings.Manifest != nil {
		return a.settings.Manifest.DependsComponents(a.Dir)
	}

	return nil
}

// DependsFilepatterns returns the app's declared dependency file patterns.
func (a *App) DependsFilepatterns() []string {
	if a.settings.Manifest != nil {
		return a.settings.Manifest.DependsFilepatterns(a.Dir)
	}

	return nil
}

// SupportedTargets returns the targets this app may be built for.
func (a *App) SupportedTargets() []string {
	if a.settings.Manifest != nil {
		return a.settings.Manifest.EnableBuildTargets(a.Dir, a.sdkconfigDefinedTarget, a.ConfigName)
	}

	if a.sdkconfigDefinedTarget != "" {
		return []string{a.sdkconfigDefinedTarget}
	}

	return a.system.fallbackTargets()
}

// VerifiedTargets returns the targets this app is verified (tested) on.
func (a *App) VerifiedTargets() []string {
	if a.settings.Manifest != nil {
		return a.settings.Manifest.EnableTestTargets(a.Dir, a.sdkconfigDefinedTarget, a.ConfigName)
	}

	return nil
}

// sortKey flattens every construction-time field in declaration order, used
// for equality and deterministic matrix enumeration.
func (a *App) sortKey() []string {
	return []string{
		a.system.name(),
		a.Dir,
		a.Target,
		a.ConfigName,
		a.SdkconfigPath,
		a.workDirTpl,
		a.buildDirTpl,
		a.buildLogTpl,
		a.sizeJSONTpl,
		a.sdkDefaults,
		strconv.FormatBool(a.DryRun),
		strconv.FormatBool(a.Verbose),
		strconv.FormatBool(a.CheckWarnings),
		strconv.FormatBool(a.Preserve),
		strconv.Itoa(a.Index),
		strconv.Itoa(a.ParallelIndex),
		strconv.Itoa(a.ParallelCount),
	}
}

// Equal reports whether both apps have identical fields.
func (a *App) Equal(other *App) bool {
	if other == nil {
		return false
	}

	ak, bk := a.sortKey(), other.sortKey()
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
	}

	return true
}

// Less orders apps lexicographically over the fields in declaration order.
// The ordering is only meaningful for deterministic enumeration.
func (a *App) Less(other *App) bool {
	ak, bk := a.sortKey(), other.sortKey()
	for i := range ak {
		if ak[i] != bk[i] {
			return ak[i] < bk[i]
		}
	}

	return false
}

// appDump is the machine-readable representation of an App.
type appDump struct {
	BuildSystem    string   `json:"build_system"`
	AppDir         string   `json:"app_dir"`
	Target         string   `json:"target"`
	ConfigName     string   `json:"config_name,omitempty"`
	SdkconfigPath  string   `json:"sdkconfig_path,omitempty"`
	Name           string   `json:"name"`
	WorkDir        string   `json:"work_dir"`
	BuildDir       string   `json:"build_dir"`
	BuildPath      string   `json:"build_path"`
	BuildLogPath   string   `json:"build_log_path,omitempty"`
	SizeJSONPath   string   `json:"size_json_path,omitempty"`
	SdkconfigFiles []string `json:"sdkconfig_files"`
	ShouldBuild    string   `json:"should_build"`
	DryRun         bool     `json:"dry_run"`
	Index          int      `json:"index,omitempty"`
}

// MarshalJSON dumps every identity and derived field for machine-readable
// matrix enumeration.
func (a *App) MarshalJSON() ([]byte, error) {
	return json.Marshal(appDump{
		BuildSystem:    a.system.name(),
		AppDir:         a.Dir,
		Target:         a.Target,
		ConfigName:     a.ConfigName,
		SdkconfigPath:  a.SdkconfigPath,
		Name:           a.Name(),
		WorkDir:        a.WorkDir(),
		BuildDir:       a.BuildDir(),
		BuildPath:      a.BuildPath(),
		BuildLogPath:   a.BuildLogPath(),
		SizeJSONPath:   a.SizeJSONPath(),
		SdkconfigFiles: a.sdkconfigFiles,
		ShouldBuild:    a.shouldBuild.String(),
		DryRun:         a.DryRun,
		Index:          a.Index,
	})
}

// String identifies the app in log messages.
func (a *App) String() string {
	var sb strings.Builder
	sb.WriteString(a.system.name())
	sb.WriteString(" app ")
	sb.WriteString(a.Dir)
	sb.WriteString(" for ")
	sb.WriteString(a.Target)
	if a.ConfigName != "" {
		sb.WriteString(" (")
		sb.WriteString(a.ConfigName)
		sb.WriteString(")")
	}

	return sb.String()
}
