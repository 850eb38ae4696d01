// Package stages plans the precompile pipeline: it turns a validated
// manifest into the stage graph the executor runs, and lists the stage
// modules an application registers.
package stages

import (
	"path/filepath"
	"sort"

	"github.com/espforge/espforge/internal/config"
	"github.com/espforge/espforge/internal/dag"
	"github.com/espforge/espforge/internal/pio"
	"github.com/espforge/espforge/internal/pipeline"
	"github.com/espforge/espforge/internal/registry"
	"github.com/espforge/espforge/stages/archive"
	"github.com/espforge/espforge/stages/collect"
	"github.com/espforge/espforge/stages/headers"
	"github.com/espforge/espforge/stages/ldscripts"
	"github.com/espforge/espforge/stages/manifest"
	"github.com/espforge/espforge/stages/piobuild"
	"github.com/espforge/espforge/stages/scaffold"
)

// CoreModules returns every stage module the precompile pipeline needs.
func CoreModules() []registry.Module {
	return []registry.Module{
		&scaffold.Module{},
		&piobuild.Module{},
		&collect.Module{},
		&archive.Module{},
		&headers.Module{},
		&ldscripts.Module{},
		&manifest.Module{},
	}
}

// Plan builds the stage graph for a precompile run. Per bundle it chains
// scaffold, build, collect, and archive; header deployment forks off each
// build, and the linker script and manifest stages fan in once every bundle
// has contributed. The returned state is the channel the stages communicate
// through.
func Plan(model *config.Model, mcu string, opts *pipeline.Options) ([]*dag.Stage, *pipeline.State) {
	state := pipeline.NewState()

	prebuiltDir := filepath.Join(opts.PlatformDir, "prebuilt")
	includeDir := filepath.Join(prebuiltDir, "include")
	ldDir := filepath.Join(prebuiltDir, "ld")

	names := make([]string, 0, len(model.Bundles))
	for name := range model.Bundles {
		names = append(names, name)
	}
	sort.Strings(names)

	var stages []*dag.Stage
	var buildIDs, fanInIDs []string

	for _, name := range names {
		b := model.Bundles[name]

		stagingDir := filepath.Join(opts.StagingRoot, name)
		project := &pio.ProjectConfig{
			PlatformDir: opts.PlatformDir,
			Board:       model.Settings.Board,
			Framework:   b.Framework,
			BuildFlags:  b.BuildFlags,
		}
		for _, lib := range b.Libraries {
			project.LibDeps = append(project.LibDeps, lib.Spec())
		}
		env := project.EnvName()

		scaffoldID := name + ".scaffold"
		buildID := name + ".build"
		collectID := name + ".collect"
		archiveID := name + ".archive"
		headersID := name + ".headers"

		stages = append(stages,
			&dag.Stage{
				ID:      scaffoldID,
				Handler: "OnStageScaffold",
				Input:   &scaffold.Input{StagingDir: stagingDir, Project: project},
			},
			&dag.Stage{
				ID:      buildID,
				Handler: "OnStageBuild",
				After:   []string{scaffoldID},
				Input:   &piobuild.Input{StagingDir: stagingDir, Runner: opts.Runner},
			},
			&dag.Stage{
				ID:      collectID,
				Handler: "OnStageCollect",
				After:   []string{buildID},
				Input: &collect.Input{
					Bundle:      name,
					Framework:   b.Framework,
					BuildDir:    pio.BuildDir(stagingDir, env),
					ExcludeDirs: b.ExcludeDirs,
					State:       state,
				},
			},
			&dag.Stage{
				ID:      archiveID,
				Handler: "OnStageArchive",
				After:   []string{collectID},
				Input: &archive.Input{
					Bundle:      name,
					OutputLib:   filepath.Join(prebuiltDir, b.Output),
					PackagesDir: opts.PackagesDir,
					Runner:      opts.Runner,
					State:       state,
				},
			},
			&dag.Stage{
				ID:      headersID,
				Handler: "OnStageHeaders",
				After:   []string{buildID},
				Input: &headers.Input{
					Bundle:      name,
					Framework:   b.Framework,
					LibdepsDir:  pio.LibdepsDir(stagingDir, env),
					IncludeDir:  includeDir,
					PackagesDir: opts.PackagesDir,
					MCU:         mcu,
					Libraries:   b.Libraries,
				},
			},
		)

		buildIDs = append(buildIDs, buildID)
		fanInIDs = append(fanInIDs, archiveID, headersID)
	}

	ldscriptsID := "ldscripts"
	stages = append(stages, &dag.Stage{
		ID:      ldscriptsID,
		Handler: "OnStageLinkerScripts",
		After:   buildIDs,
		Input: &ldscripts.Input{
			PackagesDir:    opts.PackagesDir,
			MCU:            mcu,
			LdDir:          ldDir,
			SdkconfigDests: []string{includeDir, filepath.Join(includeDir, "esp-idf")},
		},
	})

	stages = append(stages, &dag.Stage{
		ID:      "manifest",
		Handler: "OnStageManifest",
		After:   append(append([]string{}, fanInIDs...), ldscriptsID),
		Input: &manifest.Input{
			ManifestPath: filepath.Join(prebuiltDir, "manifest.json"),
			PrebuiltDir:  prebuiltDir,
			Bundles:      model.Bundles,
			State:        state,
		},
	})

	return stages, state
}
