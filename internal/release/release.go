// Package release packages the platform tree for distribution: a
// deterministic zip archive plus a SHA256SUMS file. Two runs over the same
// tree produce byte-identical archives, so release artifacts can be compared
// by checksum.
package release

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/espforge/espforge/internal/ctxlog"
)

// skipDirs are working directories never shipped in a release.
var skipDirs = map[string]bool{
	".git":       true,
	".pio":       true,
	"build_temp": true,
}

// zipEpoch is the fixed timestamp every archive entry carries. Zip stores
// local times with two-second resolution; a fixed instant keeps the archive
// independent of when packaging ran.
var zipEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Options parameterizes one packaging run.
type Options struct {
	// PlatformDir is the tree to package.
	PlatformDir string

	// OutputDir receives the archive and SHA256SUMS. Defaults to the
	// platform directory's parent.
	OutputDir string

	// Name and Version name the archive: <name>-<version>.zip.
	Name    string
	Version string

	// Force overwrites an existing archive.
	Force bool
}

// ArchiveName returns the archive file name for the release.
func (o *Options) ArchiveName() string {
	return fmt.Sprintf("%s-%s.zip", o.Name, o.Version)
}

// Package builds the release archive and checksum file, returning the
// archive path. An existing archive is only replaced with Force set.
func Package(ctx context.Context, opts *Options) (string, error) {
	logger := ctxlog.FromContext(ctx)

	if opts.Name == "" || opts.Version == "" {
		return "", fmt.Errorf("release needs a platform name and version")
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(opts.PlatformDir)
	}
	archivePath := filepath.Join(outputDir, opts.ArchiveName())

	if _, err := os.Stat(archivePath); err == nil && !opts.Force {
		return "", fmt.Errorf("release archive %s already exists; use force to overwrite", archivePath)
	}

	files, err := collectFiles(opts.PlatformDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("platform directory %s has nothing to package", opts.PlatformDir)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeArchive(archivePath, opts.PlatformDir, files); err != nil {
		return "", err
	}

	sum, err := writeChecksums(outputDir, archivePath)
	if err != nil {
		return "", err
	}

	logger.Info("Release packaged.", "archive", archivePath, "files", len(files), "sha256", sum)
	return archivePath, nil
}

// collectFiles lists the platform tree's files as sorted slash-separated
// relative paths. Sorting fixes the archive entry order.
func collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk platform directory %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// writeArchive writes the zip with normalized metadata: fixed timestamp,
// mode 0644 (0755 for executables), deflate throughout.
func writeArchive(archivePath, root string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", archivePath, err)
	}
	zw := zip.NewWriter(out)

	for _, rel := range files {
		src := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}

		mode := os.FileMode(0644)
		if info.Mode()&0111 != 0 {
			mode = 0755
		}

		header := &zip.FileHeader{
			Name:     rel,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		header.SetMode(mode)

		w, err := zw.CreateHeader(header)
		if err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("failed to add %s to archive: %w", rel, err)
		}

		in, err := os.Open(src)
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
		_, err = io.Copy(w, in)
		in.Close()
		if err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("failed to compress %s: %w", rel, err)
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return out.Close()
}

// writeChecksums writes SHA256SUMS next to the archive in the sha256sum -c
// compatible format and returns the archive's checksum.
func writeChecksums(outputDir, archivePath string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum archive: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archivePath))
	sumsPath := filepath.Join(outputDir, "SHA256SUMS")

	// Keep existing entries for other archives, replacing our own.
	var lines []string
	if existing, err := os.ReadFile(sumsPath); err == nil {
		for _, l := range strings.Split(strings.TrimRight(string(existing), "\n"), "\n") {
			if l != "" && !strings.HasSuffix(l, "  "+filepath.Base(archivePath)) {
				lines = append(lines, l+"\n")
			}
		}
	}
	lines = append(lines, line)

	if err := os.WriteFile(sumsPath, []byte(strings.Join(lines, "")), 0644); err != nil {
		return "", fmt.Errorf("failed to write SHA256SUMS: %w", err)
	}
	return sum, nil
}
