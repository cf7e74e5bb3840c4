package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefw/buildmatrix/internal/manifest"
)

// manifestFor declares dependencies for the app folder under root.
func manifestFor(t *testing.T, root, folder, rules string) *manifest.Manifest {
	t.Helper()

	path := filepath.Join(root, "manifest.yml")
	require.NoError(t, os.WriteFile(path, []byte(folder+":\n"+rules), 0o644))

	m, err := manifest.Load(root, path)
	require.NoError(t, err)

	return m
}

func TestCheckShouldBuild_NoDependencyChecking(t *testing.T) {
	a := newTestApp(t, t.TempDir(), "esp32", nil, Options{})

	a.CheckShouldBuild(BuildOptions{CheckAppDependencies: false})
	assert.Equal(t, Yes, a.ShouldBuild())
}

func TestCheckShouldBuild_ModifiedFileInsideApp(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	a := newTestApp(t, dir, "esp32", nil, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedFiles:        []string{filepath.Join(dir, "main", "main.c")},
	})
	assert.Equal(t, Yes, a.ShouldBuild())
}

func TestCheckShouldBuild_DocFileDoesNotCount(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	a := newTestApp(t, dir, "esp32", nil, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedFiles:        []string{filepath.Join(dir, "README.md")},
	})
	assert.Equal(t, Unknown, a.ShouldBuild())
}

func TestCheckShouldBuild_NoDeclaredDependenciesStaysUnknown(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	a := newTestApp(t, dir, "esp32", nil, Options{})

	// Silence about dependencies must never be read as "depends on
	// nothing".
	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedComponents:   []string{"esp_wifi"},
		ModifiedFiles:        []string{filepath.Join(root, "components", "esp_wifi", "wifi.c")},
	})
	assert.Equal(t, Unknown, a.ShouldBuild())
}

func TestCheckShouldBuild_ComponentIntersection(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	m := manifestFor(t, root, "app", "  depends_components: [esp_wifi, lwip]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedComponents:   []string{"esp_wifi"},
	})
	assert.Equal(t, Yes, a.ShouldBuild())
}

func TestCheckShouldBuild_ComponentMismatchSaysNo(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	m := manifestFor(t, root, "app", "  depends_components: [esp_wifi]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedComponents:   []string{"esp_eth"},
	})
	assert.Equal(t, No, a.ShouldBuild())
}

func TestCheckShouldBuild_FilePatternMatch(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	m := manifestFor(t, root, "app", "  depends_filepatterns: [\"components/esp_wifi/**\"]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ManifestRootPath:     root,
		ModifiedFiles:        []string{filepath.Join(root, "components", "esp_wifi", "src", "wifi.c")},
	})
	assert.Equal(t, Yes, a.ShouldBuild())
}

func TestCheckShouldBuild_FilePatternYesBeatsComponentNo(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	m := manifestFor(t, root, "app",
		"  depends_components: [esp_wifi]\n  depends_filepatterns: [\"components/lwip/**\"]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ManifestRootPath:     root,
		ModifiedComponents:   []string{"esp_eth"},
		ModifiedFiles:        []string{filepath.Join(root, "components", "lwip", "tcp.c")},
	})
	assert.Equal(t, Yes, a.ShouldBuild())
}

func TestCheckShouldBuild_ComponentNoWinsOverFileSilence(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	// Declared components, no declared file patterns: the strict component
	// "no" wins even though the file signal stays unknown.
	m := manifestFor(t, root, "app", "  depends_components: [esp_wifi]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ManifestRootPath:     root,
		ModifiedComponents:   []string{"esp_eth"},
		ModifiedFiles:        []string{filepath.Join(root, "components", "esp_eth", "eth.c")},
	})
	assert.Equal(t, No, a.ShouldBuild())
}

func TestCheckShouldBuild_FileNoAloneStaysUnknown(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	// Only file patterns declared and none match: the verdict stays
	// unknown for the reconfigure probe to resolve.
	m := manifestFor(t, root, "app", "  depends_filepatterns: [\"components/lwip/**\"]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ManifestRootPath:     root,
		ModifiedComponents:   []string{"esp_eth"},
		ModifiedFiles:        []string{filepath.Join(root, "components", "esp_eth", "eth.c")},
	})
	assert.Equal(t, Unknown, a.ShouldBuild())
}

func TestCheckShouldBuild_Sticky(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	m := manifestFor(t, root, "app", "  depends_components: [esp_wifi]\n")
	a := newTestApp(t, dir, "esp32", &Settings{Manifest: m}, Options{})

	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedComponents:   []string{"esp_eth"},
	})
	require.Equal(t, No, a.ShouldBuild())

	// A second call with contradictory inputs does not change the verdict.
	a.CheckShouldBuild(BuildOptions{
		CheckAppDependencies: true,
		ModifiedComponents:   []string{"esp_wifi"},
	})
	assert.Equal(t, No, a.ShouldBuild())
}

func TestIsModified(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "app")
	require.NoError(t, mkdir(dir))

	a := newTestApp(t, dir, "esp32", nil, Options{})

	assert.True(t, a.isModified([]string{filepath.Join(dir, "main.c")}))
	assert.False(t, a.isModified([]string{filepath.Join(dir, "README.md")}))
	assert.False(t, a.isModified([]string{filepath.Join(root, "other", "main.c")}))
	assert.False(t, a.isModified([]string{dir}))
	assert.False(t, a.isModified(nil))
}

func TestFilesMatchPatterns(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "components", "esp_wifi", "src", "wifi.c")

	assert.True(t, filesMatchPatterns([]string{file}, []string{"components/esp_wifi/**"}, root))
	assert.False(t, filesMatchPatterns([]string{file}, []string{"components/lwip/**"}, root))
	assert.False(t, filesMatchPatterns([]string{file}, nil, root))
	assert.False(t, filesMatchPatterns(nil, []string{"components/**"}, root))
}
