package hcl

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/ctxlog"
)

func testContext() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func writeManifest(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

const validManifest = `
settings {
  board = "esp32dev"
  jobs  = 4
}

bundle "arduino" {
  framework   = "arduino"
  output      = "libespforge_arduino.a"
  build_flags = ["-DBOARD_HAS_PSRAM", "-Os"]

  library "adafruit/Adafruit GFX Library" {
    version = "^1.11.9"
    headers = "Adafruit_GFX_Library"
  }

  library "madhephaestus/ESP32Encoder" {
    version = "^0.11.7"
  }
}
`

func TestLoadSingleFile(t *testing.T) {
	dir := writeManifest(t, map[string]string{"precompile.hcl": validManifest})

	model, err := NewLoader().Load(testContext(), filepath.Join(dir, "precompile.hcl"))
	require.NoError(t, err)

	require.NotNil(t, model.Settings)
	assert.Equal(t, "esp32dev", model.Settings.Board)
	assert.Equal(t, 4, model.Settings.Jobs)
	assert.False(t, model.Settings.KeepTemp)

	require.Len(t, model.Bundles, 1)
	bundle := model.Bundles["arduino"]
	require.NotNil(t, bundle)
	assert.Equal(t, config.FrameworkArduino, bundle.Framework)
	assert.Equal(t, "libespforge_arduino.a", bundle.Output)
	assert.Equal(t, []string{"-DBOARD_HAS_PSRAM", "-Os"}, bundle.BuildFlags)

	require.Len(t, bundle.Libraries, 2)
	gfx := bundle.Libraries[0]
	assert.Equal(t, "adafruit/Adafruit GFX Library@^1.11.9", gfx.Spec())
	assert.Equal(t, "Adafruit GFX Library", gfx.BareName())
	assert.Equal(t, "Adafruit_GFX_Library", gfx.HeaderDir())

	encoder := bundle.Libraries[1]
	assert.Equal(t, "ESP32Encoder", encoder.HeaderDir())
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := writeManifest(t, map[string]string{
		"settings.hcl": `
settings {
  board = "esp32dev"
}
`,
		"bundles.hcl": `
bundle "espidf" {
  framework = "espidf"
}
`,
	})

	model, err := NewLoader().Load(testContext(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, model.Settings.Jobs) // default applied
	require.Contains(t, model.Bundles, "espidf")
	// Output falls back to the framework naming convention.
	assert.Equal(t, "libespforge_espidf.a", model.Bundles["espidf"].Output)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		_, err := NewLoader().Load(testContext(), "/does/not/exist")
		assert.ErrorContains(t, err, "error accessing manifest path")
	})

	t.Run("invalid hcl is rejected", func(t *testing.T) {
		dir := writeManifest(t, map[string]string{"bad.hcl": `bundle "x" {`})
		_, err := NewLoader().Load(testContext(), dir)
		assert.ErrorContains(t, err, "failed to parse manifest file")
	})

	t.Run("duplicate bundle", func(t *testing.T) {
		dir := writeManifest(t, map[string]string{"dup.hcl": `
settings { board = "esp32dev" }
bundle "a" { framework = "arduino" }
bundle "a" { framework = "arduino" }
`})
		_, err := NewLoader().Load(testContext(), dir)
		assert.ErrorContains(t, err, `duplicate bundle "a"`)
	})

	t.Run("duplicate settings across files", func(t *testing.T) {
		dir := writeManifest(t, map[string]string{
			"a.hcl": `settings { board = "esp32dev" }`,
			"b.hcl": `settings { board = "esp32dev" }`,
		})
		_, err := NewLoader().Load(testContext(), dir)
		assert.ErrorContains(t, err, "duplicate settings block")
	})

	t.Run("build_flags must be a list of strings", func(t *testing.T) {
		dir := writeManifest(t, map[string]string{"bad.hcl": `
settings { board = "esp32dev" }
bundle "a" {
  framework   = "arduino"
  build_flags = { not = "a list" }
}
`})
		_, err := NewLoader().Load(testContext(), dir)
		assert.ErrorContains(t, err, "invalid build_flags")
	})

	t.Run("unsupported framework", func(t *testing.T) {
		dir := writeManifest(t, map[string]string{"bad.hcl": `
settings { board = "esp32dev" }
bundle "a" { framework = "mbed" }
`})
		_, err := NewLoader().Load(testContext(), dir)
		assert.ErrorContains(t, err, `unsupported framework "mbed"`)
	})

	t.Run("no manifest files", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewLoader().Load(testContext(), dir)
		assert.ErrorContains(t, err, "no .hcl manifest files")
	})
}
