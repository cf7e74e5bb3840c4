package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefw/buildmatrix/internal/runner"
)

func TestIsCMakeApp(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, IsCMakeApp(dir))

	writeFile(t, filepath.Join(dir, "CMakeLists.txt"), "")
	assert.False(t, IsCMakeApp(dir))

	writeFile(t, filepath.Join(dir, "CMakeLists.txt"), "cmake_minimum_required(VERSION 3.16)\n")
	assert.False(t, IsCMakeApp(dir))

	writeFile(t, filepath.Join(dir, "CMakeLists.txt"), cmakeProjectLine+"\nproject(demo)\n")
	assert.True(t, IsCMakeApp(dir))
}

func TestCMakeBuild_CommandLine(t *testing.T) {
	fake := &fakeRun{}
	installFakeRun(t, fake)

	dir := cmakeAppDir(t)
	defaults := filepath.Join(dir, "sdkconfig.defaults")
	writeFile(t, defaults, "CONFIG_FOO=y\n")

	settings := &Settings{IDFPath: "/opt/esp-idf", Env: testEnv(nil)}
	a := newTestApp(t, dir, "esp32", settings, Options{Preserve: true, Verbose: true})

	built, err := a.Build(BuildOptions{})
	require.NoError(t, err)
	assert.True(t, built)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, "python3", call[0])
	assert.Equal(t, filepath.Join("/opt/esp-idf", "tools", "idf.py"), call[1])
	assert.Contains(t, call, "-DIDF_TARGET=esp32")
	assert.Contains(t, call, "-DSDKCONFIG_DEFAULTS="+defaults)
	assert.Contains(t, call, "build")
	assert.Contains(t, call, "-v")
}

func TestCMakeBuild_EmptySdkconfigListDisablesDefault(t *testing.T) {
	fake := &fakeRun{}
	installFakeRun(t, fake)

	dir := cmakeAppDir(t)
	a := newTestApp(t, dir, "esp32", nil, Options{Preserve: true})

	_, err := a.Build(BuildOptions{})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.Contains(t, fake.calls[0], "-DSDKCONFIG_DEFAULTS=;")
}

func TestCMakeBuild_InjectedVars(t *testing.T) {
	fake := &fakeRun{}
	installFakeRun(t, fake)

	dir := cmakeAppDir(t)
	writeFile(t, filepath.Join(dir, "sdkconfig.defaults"), "TEST_EXCLUDE_COMPONENTS=slow\n")

	a := newTestApp(t, dir, "esp32", nil, Options{Preserve: true})

	_, err := a.Build(BuildOptions{})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Contains(t, call, "-DTEST_EXCLUDE_COMPONENTS=slow")
	// Excluding without an explicit component list builds all tests.
	assert.Contains(t, call, "-DTESTS_ALL=1")
}

func TestCMakeBuild_ReconfigureResolvesUnknown(t *testing.T) {
	dir := cmakeAppDir(t)

	tests := []struct {
		name            string
		buildComponents string
		wantBuilt       bool
		wantCalls       int
	}{
		{
			name:            "intersection builds",
			buildComponents: `["esp_wifi", "freertos", ""]`,
			wantBuilt:       true,
			wantCalls:       2,
		},
		{
			name:            "no intersection skips",
			buildComponents: `["esp_eth", "freertos"]`,
			wantBuilt:       false,
			wantCalls:       1,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var a *App

			fake := &fakeRun{}
			fake.fn = func(name string, args []string, opts runner.Options) error {
				if args[len(args)-1] == "reconfigure" {
					writeFile(t, filepath.Join(a.BuildPath(), projectDescriptionJSON),
						`{"project_name": "demo", "build_components": `+test.buildComponents+`}`)
				}
				return nil
			}
			installFakeRun(t, fake)

			a = newTestApp(t, dir, "esp32", nil, Options{Preserve: true})

			built, err := a.Build(BuildOptions{
				CheckAppDependencies: true,
				ModifiedComponents:   []string{"esp_wifi"},
			})
			require.NoError(t, err)
			assert.Equal(t, test.wantBuilt, built)
			assert.Len(t, fake.calls, test.wantCalls)

			if test.wantBuilt {
				assert.Equal(t, Yes, a.ShouldBuild())
				assert.Equal(t, "build", fake.calls[1][len(fake.calls[1])-1])
			}
		})
	}
}

func TestReadBuildComponents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, projectDescriptionJSON)
	writeFile(t, path, `{"build_components": ["main", "", "esp_wifi"]}`)

	components, err := readBuildComponents(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "esp_wifi"}, components)

	_, err = readBuildComponents(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
