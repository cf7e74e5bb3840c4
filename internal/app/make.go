package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/edgefw/buildmatrix/internal/manifest"
	"github.com/edgefw/buildmatrix/internal/runner"
)

// makeProjectLine identifies a legacy make-based project Makefile.
const makeProjectLine = `include $(IDF_PATH)/make/project.mk`

// legacyMakeTarget is only buildable by the make-based toolchain.
const legacyMakeTarget = "esp8266"

type makeSystem struct{}

// NewMakeApp creates an App driven by the legacy make-based toolchain.
func NewMakeApp(dir, target string, settings *Settings, opts Options) (*App, error) {
	return newApp(dir, target, makeSystem{}, settings, opts)
}

// IsMakeApp reports whether the directory is a valid make-based project.
func IsMakeApp(dir string) bool {
	content, err := os.ReadFile(filepath.Join(dir, "Makefile"))
	if err != nil {
		return false
	}

	return strings.Contains(string(content), makeProjectLine)
}

func (makeSystem) name() string {
	return "make"
}

func (makeSystem) fallbackTargets() []string {
	return append([]string{legacyMakeTarget}, manifest.DefaultBuildTargets...)
}

// The make-based toolchain has no build-time variable injection; every
// sdkconfig line is kept.
func (makeSystem) routeSdkconfigKey(string) keyRoute {
	return routeKeep
}

func (makeSystem) run(a *App, logfile *os.File, opts BuildOptions) (bool, error) {
	a.CheckShouldBuild(opts)
	if a.shouldBuild == No {
		slog.Info("Skip building", "app", a.String())
		return false, nil
	}

	extraEnv := map[string]string{
		"IDF_TARGET":     a.Target,
		"BUILD_DIR_BASE": a.BuildPath(),
	}

	commands := [][]string{
		// Generate the sdkconfig first, then build in parallel.
		{"make", "defconfig"},
		{"make", fmt.Sprintf("-j%d", runtime.NumCPU())},
	}

	for _, cmd := range commands {
		err := runCommand(cmd[0], cmd[1:], runner.Options{
			Dir:      a.WorkDir(),
			ExtraEnv: extraEnv,
			LogSink:  logfile,
			Terminal: a.BuildLogPath() == "",
		})
		if err != nil {
			return false, err
		}
	}

	return true, nil
}
