package linkplan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/espforge/espforge/internal/board"
)

// applyArduino fills in the Arduino framework parts of the plan: core and
// variant include paths, the partition table source, bootloader image
// selection, and the flash image table.
func applyArduino(plan *Plan, def *board.Definition, prebuiltDir string) error {
	includeDir := filepath.Join(prebuiltDir, "include")
	frameworkDir := filepath.Join(includeDir, "arduino")
	sdkDir := filepath.Join(includeDir, "esp-idf")

	core := def.Build.Core
	if core == "" {
		core = "esp32"
	}

	variantsDir := filepath.Join(frameworkDir, "variants")
	if def.Build.VariantsDir != "" {
		variantsDir = filepath.Join(ProjectDirVar, def.Build.VariantsDir)
	}

	plan.Includes = append(plan.Includes,
		includeDir,
		filepath.Join(frameworkDir, "cores", core),
	)
	if def.Build.Variant != "" {
		plan.Includes = append(plan.Includes, filepath.Join(variantsDir, def.Build.Variant))
	}
	plan.Includes = append(plan.Includes, sdkIncludeDirs(sdkDir, def.Build.MCU)...)

	plan.Defines = append(plan.Defines,
		"ESP32",
		"ESP_PLATFORM",
		"ARDUINO_ARCH_ESP32",
		fmt.Sprintf("F_CPU=%s", def.Build.FCPU),
		fmt.Sprintf("ARDUINO_BOARD=%q", def.ID),
	)
	if def.Build.Variant != "" {
		plan.Defines = append(plan.Defines, fmt.Sprintf("ARDUINO_VARIANT=%q", def.Build.Variant))
	}

	plan.CFlags = append(plan.CFlags, "-Werror=return-type")
	plan.CXXFlags = append(plan.CXXFlags, "-Werror=return-type")

	if def.Build.Arduino.LDScript != "" {
		plan.LinkerScripts = append(plan.LinkerScripts, def.Build.Arduino.LDScript)
	}

	plan.Libs = append(plan.Libs, "espforge_arduino")
	plan.LibPaths = append(plan.LibPaths,
		prebuiltDir,
		filepath.Join(prebuiltDir, "ld"),
		filepath.Join(sdkDir, def.Build.MCU, "lib"),
	)
	plan.LibSourceDirs = append(plan.LibSourceDirs,
		filepath.Join(frameworkDir, "libraries"),
		filepath.Join(includeDir, "libraries"),
	)

	partitionsName := def.Build.Partitions
	if partitionsName == "" {
		partitionsName = def.Build.Arduino.Partitions
	}
	plan.PartitionsCSV = resolvePartitionTable(def, partitionsName, frameworkDir, variantsDir)

	plan.Bootloader = selectBootloader(def, partitionsName, sdkDir, variantsDir, plan.Flash)
	plan.FlashImages = flashImageTable(plan, def, partitionsName, frameworkDir, variantsDir)
	return nil
}

// sdkIncludeDirs lists the per-component include directories of the Arduino
// SDK tree. The SDK ships them as one directory per component under
// <mcu>/include.
func sdkIncludeDirs(sdkDir, mcu string) []string {
	root := filepath.Join(sdkDir, mcu, "include")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs
}

// resolvePartitionTable picks the partition CSV: an explicit name is looked
// up in the variant directory, then the framework's partition directory,
// then taken verbatim as a project-relative path. Without a name, a variant
// partitions.csv wins over the framework default.
func resolvePartitionTable(def *board.Definition, partitionsName, frameworkDir, variantsDir string) string {
	fwPartitionsDir := filepath.Join(frameworkDir, "tools", "partitions")
	variantPartitionsDir := filepath.Join(variantsDir, def.Build.Variant)

	if partitionsName != "" {
		if isFile(filepath.Join(variantPartitionsDir, partitionsName)) {
			return filepath.Join(variantPartitionsDir, partitionsName)
		}
		if isFile(filepath.Join(fwPartitionsDir, partitionsName)) {
			return filepath.Join(fwPartitionsDir, partitionsName)
		}
		return partitionsName
	}

	variantPartitions := filepath.Join(variantPartitionsDir, "partitions.csv")
	if isFile(variantPartitions) {
		return variantPartitions
	}
	return filepath.Join(fwPartitionsDir, "default.csv")
}

// selectBootloader picks the bootloader image. A variant that ships its own
// image (or the descriptor's custom_bootloader) is used as-is; otherwise the
// prebuilt ELF matching the boot mode and frequency must be converted by the
// shim.
func selectBootloader(def *board.Definition, partitionsName, sdkDir, variantsDir string, flash Flash) *Bootloader {
	imageFile := "bootloader.bin"
	if strings.HasSuffix(partitionsName, "tinyuf2.csv") {
		imageFile = "bootloader-tinyuf2.bin"
	}
	if def.Build.Arduino.CustomBootloader != "" {
		imageFile = def.Build.Arduino.CustomBootloader
	}

	variantBootloader := filepath.Join(variantsDir, def.Build.Variant, imageFile)
	if isFile(variantBootloader) {
		return &Bootloader{Path: variantBootloader}
	}

	elf := filepath.Join(sdkDir, def.Build.MCU, "bin",
		fmt.Sprintf("bootloader_%s_%s.elf", flash.BootMode, flash.BootFreq))
	return &Bootloader{Path: elf, FromELF: true}
}

// flashImageTable assembles the extra images flashed alongside the
// application: bootloader, partition table, boot_app0, plus any extras the
// descriptor declares and the optional TinyUF2 second stage.
func flashImageTable(plan *Plan, def *board.Definition, partitionsName, frameworkDir, variantsDir string) []Image {
	bootloaderPath := plan.Bootloader.Path
	if plan.Bootloader.FromELF {
		bootloaderPath = filepath.Join(BuildDirVar, "bootloader.bin")
	}

	images := []Image{
		{Offset: bootloaderOffset(def.Build.MCU), Path: bootloaderPath},
		{Offset: "0x8000", Path: filepath.Join(BuildDirVar, "partitions.bin")},
		{Offset: "0xe000", Path: filepath.Join(frameworkDir, "tools", "partitions", "boot_app0.bin")},
	}

	for _, extra := range def.Upload.Arduino.FlashExtraImages {
		if len(extra) != 2 {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("malformed flash_extra_images entry %v, expected [offset, image]", extra))
			continue
		}
		images = append(images, Image{Offset: extra[0], Path: filepath.Join(frameworkDir, extra[1])})
	}

	if strings.HasSuffix(partitionsName, "tinyuf2.csv") || def.Upload.Arduino.TinyUF2Image != "" {
		images = appendTinyUF2Image(plan, def, variantsDir, images)
	}
	return images
}

// appendTinyUF2Image adds the UF2 bootloader image when the TinyUF2
// partition layout is selected.
func appendTinyUF2Image(plan *Plan, def *board.Definition, variantsDir string, images []Image) []Image {
	image := def.Upload.Arduino.TinyUF2Image
	if image == "" {
		image = filepath.Join(variantsDir, def.Build.Variant, "tinyuf2.bin")
	}
	if !isFile(image) {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("UF2 bootloader image %s does not exist", image))
		return images
	}

	for _, existing := range images {
		if filepath.Base(existing.Path) == "tinyuf2.bin" {
			plan.Warnings = append(plan.Warnings, "an extra UF2 bootloader image is already added")
			return images
		}
	}

	offset := def.Upload.Arduino.UF2BootloaderOffset
	if offset == "" {
		offset = "0x410000"
		if strings.HasPrefix(def.ID, "adafruit") {
			offset = "0x2d0000"
		}
	}
	return append(images, Image{Offset: offset, Path: image})
}

// isFile reports whether path names an existing regular file. Paths built on
// shim variables cannot be checked and count as absent.
func isFile(path string) bool {
	if strings.HasPrefix(path, "$") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
