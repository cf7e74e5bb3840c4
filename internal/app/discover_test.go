package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findTestApps(t *testing.T, paths []string, opts DiscoverOptions) []*App {
	t.Helper()

	apps, err := FindApps(paths, &Settings{Env: testEnv(nil)}, opts)
	require.NoError(t, err)

	return apps
}

func TestFindApps_SingleCMakeApp(t *testing.T) {
	dir := cmakeAppDir(t)

	apps := findTestApps(t, []string{dir}, DiscoverOptions{Target: "esp32"})
	require.Len(t, apps, 1)
	assert.Equal(t, dir, apps[0].Dir)
	assert.Equal(t, "esp32", apps[0].Target)
	assert.Equal(t, "cmake", apps[0].BuildSystem())
}

func TestFindApps_NonAppDirYieldsNothing(t *testing.T) {
	apps := findTestApps(t, []string{t.TempDir()}, DiscoverOptions{Target: "esp32"})
	assert.Empty(t, apps)
}

func TestFindApps_RecursiveWalk(t *testing.T) {
	root := t.TempDir()
	for _, sub := range []string{"a", "b/nested"} {
		writeFile(t, filepath.Join(root, sub, "CMakeLists.txt"), cmakeProjectLine+"\n")
	}
	// Neither of these may be descended into.
	writeFile(t, filepath.Join(root, "build", "CMakeLists.txt"), cmakeProjectLine+"\n")
	writeFile(t, filepath.Join(root, "a", "managed_components", "dep", "CMakeLists.txt"), cmakeProjectLine+"\n")
	writeFile(t, filepath.Join(root, ".git", "CMakeLists.txt"), cmakeProjectLine+"\n")

	apps := findTestApps(t, []string{root}, DiscoverOptions{Target: "esp32", Recursive: true})
	require.Len(t, apps, 2)
	assert.Equal(t, filepath.Join(root, "a"), apps[0].Dir)
	assert.Equal(t, filepath.Join(root, "b", "nested"), apps[1].Dir)
}

func TestFindApps_NonRecursiveIgnoresChildren(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "child", "CMakeLists.txt"), cmakeProjectLine+"\n")

	apps := findTestApps(t, []string{root}, DiscoverOptions{Target: "esp32"})
	assert.Empty(t, apps)
}

func TestFindApps_ConfigRuleVariants(t *testing.T) {
	dir := cmakeAppDir(t)
	writeFile(t, filepath.Join(dir, "sdkconfig.ci.debug"), "CONFIG_DEBUG=y\n")
	writeFile(t, filepath.Join(dir, "sdkconfig.ci.release"), "CONFIG_DEBUG=n\n")

	apps := findTestApps(t, []string{dir}, DiscoverOptions{
		Target:      "esp32",
		ConfigRules: []string{"sdkconfig.ci.*"},
	})
	require.Len(t, apps, 2)
	assert.Equal(t, "debug", apps[0].ConfigName)
	assert.Equal(t, filepath.Join(dir, "sdkconfig.ci.debug"), apps[0].SdkconfigPath)
	assert.Equal(t, "release", apps[1].ConfigName)
}

func TestFindApps_NoConfigMatchYieldsUnnamedVariant(t *testing.T) {
	dir := cmakeAppDir(t)

	apps := findTestApps(t, []string{dir}, DiscoverOptions{
		Target:      "esp32",
		ConfigRules: []string{"sdkconfig.ci.*"},
	})
	require.Len(t, apps, 1)
	assert.Equal(t, "", apps[0].ConfigName)
	assert.Equal(t, "", apps[0].SdkconfigPath)
}

func TestFindApps_AllTargetsEnumeratesDefaults(t *testing.T) {
	dir := cmakeAppDir(t)

	apps := findTestApps(t, []string{dir}, DiscoverOptions{Target: "all"})
	require.NotEmpty(t, apps)

	var targets []string
	for _, a := range apps {
		targets = append(targets, a.Target)
	}
	assert.Contains(t, targets, "esp32")
	assert.Contains(t, targets, "esp32s3")
}

func TestFindApps_SdkconfigTargetRestrictsMatrix(t *testing.T) {
	dir := cmakeAppDir(t)
	writeFile(t, filepath.Join(dir, "sdkconfig.defaults"), "CONFIG_IDF_TARGET=\"esp32s2\"\n")

	apps := findTestApps(t, []string{dir}, DiscoverOptions{Target: ""})
	require.Len(t, apps, 1)
	assert.Equal(t, "esp32s2", apps[0].Target)

	// An explicitly requested target outside the declared one is dropped.
	apps = findTestApps(t, []string{dir}, DiscoverOptions{Target: "esp32"})
	assert.Empty(t, apps)
}

func TestFindApps_MakeApp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Makefile"), makeProjectLine+"\n")

	apps := findTestApps(t, []string{dir}, DiscoverOptions{Target: "esp8266"})
	require.Len(t, apps, 1)
	assert.Equal(t, "make", apps[0].BuildSystem())
}

func TestConfigVariants_NamesFromWildcard(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sdkconfig.ci.foo"), "")
	writeFile(t, filepath.Join(dir, "sdkconfig.ci.bar"), "")

	variants := configVariants(dir, []string{"sdkconfig.ci.*"})
	require.Len(t, variants, 2)
	assert.Equal(t, "bar", variants[0].name)
	assert.Equal(t, "foo", variants[1].name)
}
