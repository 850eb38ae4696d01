package release

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/testutil"
)

func platformFixture(t *testing.T) string {
	return testutil.WriteFiles(t, map[string]string{
		"platform.json":                  `{"name":"espforge","version":"1.0.0"}`,
		"boards/esp32dev.json":           "{}",
		"prebuilt/libespforge_arduino.a": "!<arch>",
		".pio/build/leftover.o":          "stale",
		".git/HEAD":                      "ref: refs/heads/main",
	})
}

func TestPackageProducesArchiveAndChecksums(t *testing.T) {
	ctx, _ := testutil.Context()
	platformDir := platformFixture(t)
	outputDir := t.TempDir()

	archivePath, err := Package(ctx, &Options{
		PlatformDir: platformDir,
		OutputDir:   outputDir,
		Name:        "espforge",
		Version:     "1.0.0",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outputDir, "espforge-1.0.0.zip"), archivePath)

	r, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"boards/esp32dev.json",
		"platform.json",
		"prebuilt/libespforge_arduino.a",
	}, names)

	sums, err := os.ReadFile(filepath.Join(outputDir, "SHA256SUMS"))
	require.NoError(t, err)
	assert.Contains(t, string(sums), "espforge-1.0.0.zip")
	require.Len(t, strings.Fields(strings.TrimSpace(string(sums))), 2)
}

func TestPackageIsDeterministic(t *testing.T) {
	ctx, _ := testutil.Context()
	platformDir := platformFixture(t)

	first, err := Package(ctx, &Options{
		PlatformDir: platformDir, OutputDir: t.TempDir(), Name: "espforge", Version: "1.0.0",
	})
	require.NoError(t, err)
	second, err := Package(ctx, &Options{
		PlatformDir: platformDir, OutputDir: t.TempDir(), Name: "espforge", Version: "1.0.0",
	})
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPackageRefusesOverwriteWithoutForce(t *testing.T) {
	ctx, _ := testutil.Context()
	platformDir := platformFixture(t)
	outputDir := t.TempDir()
	opts := &Options{PlatformDir: platformDir, OutputDir: outputDir, Name: "espforge", Version: "1.0.0"}

	_, err := Package(ctx, opts)
	require.NoError(t, err)

	_, err = Package(ctx, opts)
	assert.ErrorContains(t, err, "already exists")

	opts.Force = true
	_, err = Package(ctx, opts)
	assert.NoError(t, err)
}

func TestPackageEmptyTree(t *testing.T) {
	ctx, _ := testutil.Context()
	_, err := Package(ctx, &Options{
		PlatformDir: t.TempDir(), OutputDir: t.TempDir(), Name: "espforge", Version: "1.0.0",
	})
	assert.ErrorContains(t, err, "nothing to package")
}

func TestPackageMissingNameOrVersion(t *testing.T) {
	ctx, _ := testutil.Context()
	_, err := Package(ctx, &Options{PlatformDir: t.TempDir(), Name: "espforge"})
	assert.ErrorContains(t, err, "name and version")
}
