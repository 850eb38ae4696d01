package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/linkplan"
	"github.com/espforge/espforge/internal/testutil"
)

// fakeLoader returns a canned model without touching the filesystem.
type fakeLoader struct {
	model *config.Model
	err   error
}

func (f *fakeLoader) Load(ctx context.Context, path string) (*config.Model, error) {
	return f.model, f.err
}

const esp32devJSON = `{
  "build": {
    "core": "esp32",
    "f_cpu": "240000000L",
    "f_flash": "40000000L",
    "flash_mode": "dio",
    "mcu": "esp32",
    "variant": "esp32"
  },
  "frameworks": ["arduino", "espidf"],
  "name": "Espressif ESP32 Dev Module",
  "upload": {
    "flash_size": "4MB",
    "maximum_ram_size": 327680,
    "maximum_size": 4194304,
    "protocol": "esptool",
    "speed": 460800
  }
}`

const platformJSON = `{
  "name": "espforge",
  "title": "Espressif 32 (pre-compiled)",
  "version": "1.2.3",
  "frameworks": {
    "arduino": {},
    "espidf": {}
  },
  "packages": {
    "toolchain-xtensa-esp32": {
      "type": "toolchain",
      "owner": "espressif",
      "version": "8.4.0+2021r2-patch5"
    }
  }
}`

func newTestApp(t *testing.T, cfg Config, loader config.Loader) (*App, *bytes.Buffer, *testutil.SafeBuffer) {
	t.Helper()
	cfg.LogFormat = "text"
	cfg.LogLevel = "debug"
	validated, err := NewConfig(cfg)
	require.NoError(t, err)

	var out bytes.Buffer
	errBuf := &testutil.SafeBuffer{}
	return NewApp(&out, errBuf, validated, loader), &out, errBuf
}

func TestRunBoardsList(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"boards/esp32dev.json": esp32devJSON,
		"platform.json":        platformJSON,
	})

	forgeApp, out, _ := newTestApp(t, Config{
		Command:      CommandBoards,
		PlatformDir:  platformDir,
		BoardsAction: BoardsList,
	}, nil)

	require.NoError(t, forgeApp.Run(context.Background()))
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "esp32dev")
	assert.Contains(t, out.String(), "arduino,espidf")
}

func TestRunBoardsValidateOK(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"boards/esp32dev.json": esp32devJSON,
		"platform.json":        platformJSON,
	})

	forgeApp, out, _ := newTestApp(t, Config{
		Command:      CommandBoards,
		PlatformDir:  platformDir,
		BoardsAction: BoardsValidate,
	}, nil)

	require.NoError(t, forgeApp.Run(context.Background()))
	assert.Contains(t, out.String(), "1 board(s) valid")
}

func TestRunBoardsValidateReportsViolations(t *testing.T) {
	broken := `{
  "build": {"core": "esp32", "f_cpu": "240000000L", "f_flash": "40000000L", "flash_mode": "dio", "mcu": "esp9000", "variant": "esp32"},
  "frameworks": ["arduino"],
  "name": "Broken Module",
  "upload": {"flash_size": "4MB", "maximum_ram_size": 327680, "maximum_size": 4194304}
}`
	platformDir := testutil.WriteFiles(t, map[string]string{
		"boards/broken.json": broken,
		"platform.json":      platformJSON,
	})

	forgeApp, out, _ := newTestApp(t, Config{
		Command:      CommandBoards,
		PlatformDir:  platformDir,
		BoardsAction: BoardsValidate,
	}, nil)

	err := forgeApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 descriptor violation(s)")
	assert.Contains(t, out.String(), "unsupported mcu")
}

func TestRunLinkplanPrintsJSON(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"boards/esp32dev.json": esp32devJSON,
	})

	forgeApp, out, _ := newTestApp(t, Config{
		Command:     CommandLinkplan,
		PlatformDir: platformDir,
		BoardID:     "esp32dev",
		Framework:   config.FrameworkArduino,
	}, nil)

	require.NoError(t, forgeApp.Run(context.Background()))

	var plan linkplan.Plan
	require.NoError(t, json.Unmarshal(out.Bytes(), &plan))
	assert.Equal(t, "esp32dev", plan.Board)
	assert.Equal(t, "esp32", plan.MCU)
	assert.Contains(t, plan.Libs, "espforge_arduino")
}

func TestRunLinkplanUnknownBoard(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"boards/esp32dev.json": esp32devJSON,
	})

	forgeApp, _, _ := newTestApp(t, Config{
		Command:     CommandLinkplan,
		PlatformDir: platformDir,
		BoardID:     "esp99",
		Framework:   config.FrameworkArduino,
	}, nil)

	err := forgeApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown board "esp99"`)
	assert.Contains(t, err.Error(), "esp32dev")
}

func TestRunPackagePrintsArchivePath(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"platform.json":        platformJSON,
		"boards/esp32dev.json": esp32devJSON,
	})
	outputDir := t.TempDir()

	forgeApp, out, _ := newTestApp(t, Config{
		Command:     CommandPackage,
		PlatformDir: platformDir,
		OutputDir:   outputDir,
	}, nil)

	require.NoError(t, forgeApp.Run(context.Background()))
	archivePath := strings.TrimSpace(out.String())
	assert.Contains(t, archivePath, "espforge-1.2.3.zip")
	assert.FileExists(t, archivePath)
}

func TestRunCheckAllPinned(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"platform.json": platformJSON,
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/packages/espressif/toolchain/toolchain-xtensa-esp32" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"version":{"name":"8.4.0+2021r2-patch5"},"versions":[{"name":"8.4.0+2021r2-patch5"}]}`)
	}))
	defer server.Close()

	forgeApp, out, _ := newTestApp(t, Config{
		Command:     CommandCheck,
		PlatformDir: platformDir,
		RegistryURL: server.URL,
	}, nil)

	require.NoError(t, forgeApp.Run(context.Background()))
	assert.Contains(t, out.String(), "toolchain-xtensa-esp32")
	assert.Contains(t, out.String(), "ok")
}

func TestRunCheckReportsMissing(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"platform.json": platformJSON,
	})

	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	forgeApp, out, _ := newTestApp(t, Config{
		Command:     CommandCheck,
		PlatformDir: platformDir,
		RegistryURL: server.URL,
	}, nil)

	err := forgeApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 package(s) unavailable")
	assert.Contains(t, out.String(), "missing")
}

func TestRunPrecompileUnknownBoard(t *testing.T) {
	platformDir := testutil.WriteFiles(t, map[string]string{
		"boards/esp32dev.json": esp32devJSON,
	})

	loader := &fakeLoader{model: &config.Model{
		Settings: &config.Settings{Board: "esp99", Jobs: 2},
		Bundles: map[string]*config.Bundle{
			"arduino": {Name: "arduino", Framework: config.FrameworkArduino, Output: "libespforge_arduino.a"},
		},
	}}

	forgeApp, _, _ := newTestApp(t, Config{
		Command:      CommandPrecompile,
		PlatformDir:  platformDir,
		ManifestPath: "precompile.hcl",
	}, loader)

	err := forgeApp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown board "esp99"`)
}
