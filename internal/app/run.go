package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/espforge/espforge/internal/board"
	"github.com/espforge/espforge/internal/ctxlog"
	"github.com/espforge/espforge/internal/dag"
	"github.com/espforge/espforge/internal/linkplan"
	"github.com/espforge/espforge/internal/pio"
	"github.com/espforge/espforge/internal/pipeline"
	"github.com/espforge/espforge/internal/regclient"
	"github.com/espforge/espforge/internal/release"
	"github.com/espforge/espforge/stages"
)

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	switch a.config.Command {
	case CommandPrecompile:
		return a.runPrecompile(ctx)
	case CommandPackage:
		return a.runPackage(ctx)
	case CommandLinkplan:
		return a.runLinkplan(ctx)
	case CommandBoards:
		return a.runBoards(ctx)
	case CommandCheck:
		return a.runCheck(ctx)
	}
	// NewConfig rejects unknown commands, so this is unreachable.
	return fmt.Errorf("unknown command %q", a.config.Command)
}

// runPrecompile loads the manifest and drives the stage graph through the
// worker-pool executor.
func (a *App) runPrecompile(ctx context.Context) error {
	model, err := a.loader.Load(ctx, a.config.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	boards, err := board.LoadDir(filepath.Join(a.config.PlatformDir, "boards"))
	if err != nil {
		return err
	}
	def, ok := boards[model.Settings.Board]
	if !ok {
		return fmt.Errorf("manifest references unknown board %q; known boards: %s",
			model.Settings.Board, strings.Join(board.IDs(boards), ", "))
	}

	workers := model.Settings.Jobs
	if a.config.Workers > 0 {
		workers = a.config.Workers
	}
	keepTemp := model.Settings.KeepTemp || a.config.KeepTemp
	stagingRoot := filepath.Join(a.config.PlatformDir, "build_temp")

	opts := &pipeline.Options{
		PlatformDir: a.config.PlatformDir,
		StagingRoot: stagingRoot,
		PackagesDir: pio.PackagesDir(),
		Runner:      a.runner,
		KeepTemp:    keepTemp,
	}

	plan, _ := stages.Plan(model, def.Build.MCU, opts)
	if err := a.registry.Validate(dag.HandlerNames(plan)); err != nil {
		// A plan referencing an unregistered handler is a programmer error.
		panic(err)
	}

	graph, err := dag.Build(ctx, plan, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build stage graph: %w", err)
	}
	a.logger.Info("Starting precompile pipeline.",
		"bundles", len(model.Bundles), "stages", len(graph.Nodes), "workers", workers)

	if err := dag.New(graph, workers, a.registry).Run(ctx); err != nil {
		return err
	}

	if keepTemp {
		a.logger.Info("Staging directories retained.", "dir", stagingRoot)
	} else if err := os.RemoveAll(stagingRoot); err != nil {
		a.logger.Warn("Failed to remove staging directories.", "dir", stagingRoot, "error", err)
	}

	a.logger.Info("Precompile pipeline finished.")
	return nil
}

// runPackage zips the platform tree into a release archive.
func (a *App) runPackage(ctx context.Context) error {
	platform, err := board.LoadPlatform(filepath.Join(a.config.PlatformDir, "platform.json"))
	if err != nil {
		return err
	}

	archivePath, err := release.Package(ctx, &release.Options{
		PlatformDir: a.config.PlatformDir,
		OutputDir:   a.config.OutputDir,
		Name:        platform.Name,
		Version:     platform.Version,
		Force:       a.config.Force,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.outW, archivePath)
	return nil
}

// runLinkplan prints the framework link plan for a board as JSON.
func (a *App) runLinkplan(ctx context.Context) error {
	boards, err := board.LoadDir(filepath.Join(a.config.PlatformDir, "boards"))
	if err != nil {
		return err
	}
	def, ok := boards[a.config.BoardID]
	if !ok {
		return fmt.Errorf("unknown board %q; known boards: %s",
			a.config.BoardID, strings.Join(board.IDs(boards), ", "))
	}

	plan, err := linkplan.Compute(def, &linkplan.Options{
		Framework:      a.config.Framework,
		PlatformDir:    a.config.PlatformDir,
		UploadProtocol: a.config.UploadProtocol,
		UploadPort:     a.config.UploadPort,
	})
	if err != nil {
		return err
	}

	for _, warning := range plan.Warnings {
		a.logger.Warn(warning)
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode link plan: %w", err)
	}
	fmt.Fprintln(a.outW, string(data))
	return nil
}

// runBoards lists or validates the board descriptors.
func (a *App) runBoards(ctx context.Context) error {
	boards, err := board.LoadDir(filepath.Join(a.config.PlatformDir, "boards"))
	if err != nil {
		return err
	}

	var platformFrameworks []string
	platform, err := board.LoadPlatform(filepath.Join(a.config.PlatformDir, "platform.json"))
	if err == nil {
		platformFrameworks = platform.FrameworkNames()
	} else {
		a.logger.Warn("Platform descriptor not loadable, skipping framework cross-check.", "error", err)
	}

	if a.config.BoardsAction == BoardsValidate {
		return a.validateBoards(boards, platform, platformFrameworks)
	}

	w := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMCU\tFLASH\tFRAMEWORKS")
	for _, id := range board.IDs(boards) {
		def := boards[id]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			id, def.Name, def.Build.MCU, def.Upload.FlashSize, strings.Join(def.Frameworks, ","))
	}
	return w.Flush()
}

func (a *App) validateBoards(boards map[string]*board.Definition, platform *board.Platform, platformFrameworks []string) error {
	var violations []error
	if platform != nil {
		violations = append(violations, platform.Validate()...)
	}
	for _, id := range board.IDs(boards) {
		violations = append(violations, boards[id].Validate(platformFrameworks)...)
	}

	for _, v := range violations {
		fmt.Fprintln(a.outW, v)
	}
	if len(violations) > 0 {
		return fmt.Errorf("%d descriptor violation(s)", len(violations))
	}

	fmt.Fprintf(a.outW, "%d board(s) valid\n", len(boards))
	return nil
}

// runCheck verifies the platform's pinned packages against the registry.
func (a *App) runCheck(ctx context.Context) error {
	platform, err := board.LoadPlatform(filepath.Join(a.config.PlatformDir, "platform.json"))
	if err != nil {
		return err
	}

	client := regclient.NewClient(a.config.RegistryURL, nil)
	results, err := client.Check(ctx, platform)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tREQUIRED\tLATEST\tSTATUS")
	for _, r := range results {
		status := "ok"
		switch {
		case !r.Found:
			status = "missing"
		case !r.Pinned:
			status = "version not published"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Required, r.Latest, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if missing := regclient.Missing(results); len(missing) > 0 {
		return fmt.Errorf("%d package(s) unavailable in the registry", len(missing))
	}
	return nil
}
