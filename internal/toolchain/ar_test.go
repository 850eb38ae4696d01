package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/espforge/espforge/internal/testutil"
)

func TestFindArInPackagesDir(t *testing.T) {
	// Force the PATH lookup to miss so the packages fallback is exercised.
	t.Setenv("PATH", t.TempDir())

	packagesDir := t.TempDir()
	arPath := filepath.Join(packagesDir, "toolchain-xtensa-esp32", "bin", ArTool)
	require.NoError(t, os.MkdirAll(filepath.Dir(arPath), 0755))
	require.NoError(t, os.WriteFile(arPath, []byte{}, 0755))

	found, err := FindAr(packagesDir)
	require.NoError(t, err)
	assert.Equal(t, arPath, found)
}

func TestFindArMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := FindAr(t.TempDir())
	assert.ErrorContains(t, err, "not found on PATH")
}

func TestCreateArchiveChunksInvocations(t *testing.T) {
	ctx, _ := testutil.Context()
	runner := testutil.NewFakeRunner()

	var objects []string
	for i := 0; i < 120; i++ {
		objects = append(objects, fmt.Sprintf("/build/obj%03d.o", i))
	}

	outputLib := filepath.Join(t.TempDir(), "prebuilt", "libespforge_arduino.a")
	require.NoError(t, CreateArchive(ctx, runner, "/usr/bin/ar", outputLib, objects))

	calls := runner.Calls()
	// 120 objects at 50 per invocation: rcs, rs, rs.
	require.Len(t, calls, 3)
	assert.Equal(t, "rcs", calls[0].Args[0])
	assert.Equal(t, "rs", calls[1].Args[0])
	assert.Equal(t, "rs", calls[2].Args[0])

	assert.Len(t, calls[0].Args, 2+50)
	assert.Len(t, calls[2].Args, 2+20)

	for _, call := range calls {
		assert.Equal(t, outputLib, call.Args[1])
	}
	assert.True(t, strings.HasSuffix(calls[0].Args[2], "obj000.o"))
	assert.True(t, strings.HasSuffix(calls[2].Args[len(calls[2].Args)-1], "obj119.o"))
}

func TestCreateArchiveEmptyObjects(t *testing.T) {
	ctx, _ := testutil.Context()
	err := CreateArchive(ctx, testutil.NewFakeRunner(), "/usr/bin/ar", "/tmp/out.a", nil)
	assert.ErrorContains(t, err, "no object files")
}

func TestCreateArchiveArchiverFailure(t *testing.T) {
	ctx, _ := testutil.Context()
	runner := testutil.NewFakeRunner()
	runner.Results["ar"] = errors.New("ar: malformed object")

	outputLib := filepath.Join(t.TempDir(), "out.a")
	err := CreateArchive(ctx, runner, "/usr/bin/ar", outputLib, []string{"/build/a.o"})
	assert.ErrorContains(t, err, "archiver failed on objects 0-0")
}

func TestCreateArchiveRemovesStaleArchive(t *testing.T) {
	ctx, _ := testutil.Context()
	runner := testutil.NewFakeRunner()

	outputLib := filepath.Join(t.TempDir(), "out.a")
	require.NoError(t, os.WriteFile(outputLib, []byte("stale"), 0644))

	require.NoError(t, CreateArchive(ctx, runner, "/usr/bin/ar", outputLib, []string{"/build/a.o"}))
	// The fake runner writes nothing, so the stale archive must be gone.
	assert.NoFileExists(t, outputLib)
}
