package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const esp32devJSON = `{
  "build": {
    "arduino": { "ldscript": "esp32_out.ld" },
    "core": "esp32",
    "extra_flags": "-DARDUINO_ESP32_DEV",
    "f_cpu": "240000000L",
    "f_flash": "40000000L",
    "flash_mode": "dio",
    "mcu": "esp32",
    "variant": "esp32"
  },
  "connectivity": ["wifi", "bluetooth"],
  "debug": { "openocd_board": "esp-wroom-32.cfg" },
  "frameworks": ["arduino", "espidf"],
  "name": "Espressif ESP32 Dev Module",
  "upload": {
    "flash_size": "4MB",
    "maximum_ram_size": 327680,
    "maximum_size": 4194304,
    "require_upload_port": true,
    "speed": 460800
  },
  "vendor": "Espressif"
}`

func writeBoard(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeBoard(t, dir, "esp32dev.json", esp32devJSON)

	def, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "esp32dev", def.ID)
	assert.Equal(t, "Espressif ESP32 Dev Module", def.Name)
	assert.Equal(t, "esp32", def.Build.MCU)
	assert.Equal(t, "dio", def.Build.FlashMode)
	assert.Equal(t, "esp32_out.ld", def.Build.Arduino.LDScript)
	assert.Equal(t, []string{"arduino", "espidf"}, def.Frameworks)
	assert.True(t, def.Upload.RequireUploadPort)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeBoard(t, dir, "esp32dev.json", esp32devJSON)
	writeBoard(t, dir, "notes.txt", "ignored")

	boards, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, []string{"esp32dev"}, IDs(boards))
}

func TestFrequencyHz(t *testing.T) {
	hz, err := FrequencyHz("240000000L")
	require.NoError(t, err)
	assert.Equal(t, int64(240000000), hz)

	hz, err = FrequencyHz("40000000")
	require.NoError(t, err)
	assert.Equal(t, int64(40000000), hz)

	_, err = FrequencyHz("fast")
	assert.Error(t, err)

	_, err = FrequencyHz("0")
	assert.ErrorContains(t, err, "must be positive")
}

func TestFlashSizeBytes(t *testing.T) {
	size, err := FlashSizeBytes("4MB")
	require.NoError(t, err)
	assert.Equal(t, int64(4*1024*1024), size)

	_, err = FlashSizeBytes("4GB")
	assert.Error(t, err)

	_, err = FlashSizeBytes("MB")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	def, err := Load(writeBoard(t, dir, "esp32dev.json", esp32devJSON))
	require.NoError(t, err)

	assert.Empty(t, def.Validate([]string{"arduino", "espidf"}))

	t.Run("framework not provided by platform", func(t *testing.T) {
		errs := def.Validate([]string{"arduino"})
		require.Len(t, errs, 1)
		assert.ErrorContains(t, errs[0], `framework "espidf" not provided`)
	})

	t.Run("bad fields are all reported", func(t *testing.T) {
		bad := *def
		bad.Build.MCU = "esp8266"
		bad.Build.FCPU = "fast"
		bad.Upload.FlashSize = "huge"
		errs := bad.Validate(nil)
		assert.Len(t, errs, 3)
	})
}

func TestLoadPlatform(t *testing.T) {
	dir := t.TempDir()
	path := writeBoard(t, dir, "platform.json", `{
  "name": "espforge-esp32",
  "title": "EspForge ESP32",
  "description": "ESP32 platform with pre-compiled framework libraries",
  "version": "1.2.0",
  "frameworks": { "arduino": {}, "espidf": {} },
  "packages": {
    "toolchain-xtensa-esp32": { "type": "toolchain", "owner": "espressif", "version": "8.4.0+2021r2-patch5" },
    "tool-esptoolpy": { "type": "uploader", "owner": "platformio", "version": "~1.40501.0" }
  }
}`)

	p, err := LoadPlatform(path)
	require.NoError(t, err)
	assert.Empty(t, p.Validate())
	assert.Equal(t, []string{"arduino", "espidf"}, p.FrameworkNames())
	assert.Equal(t, []string{"tool-esptoolpy", "toolchain-xtensa-esp32"}, p.PackageNames())

	t.Run("missing package version is reported", func(t *testing.T) {
		p2 := *p
		p2.Packages = map[string]Package{"broken": {Type: "toolchain"}}
		errs := p2.Validate()
		require.Len(t, errs, 1)
		assert.ErrorContains(t, errs[0], `package "broken"`)
	})
}
