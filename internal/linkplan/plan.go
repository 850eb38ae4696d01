// Package linkplan computes the framework link plan for a board: toolchain
// program names, compiler and linker flag sets, include paths into the
// prebuilt tree, the flash image table, and the upload command plan. The
// plan is emitted as one JSON document for the SCons shim to consume, which
// keeps all decision logic on this side of the process boundary.
package linkplan

import (
	"fmt"
	"path/filepath"

	"github.com/espforge/espforge/internal/board"
	"github.com/espforge/espforge/internal/config"
)

// Program name placeholders the consuming shim substitutes. They follow the
// SCons variable convention so the plan reads naturally on that side.
const (
	BuildDirVar   = "$BUILD_DIR"
	ProjectDirVar = "$PROJECT_DIR"
)

// Toolchain names the cross tools for the Xtensa/RISC-V toolchain package.
type Toolchain struct {
	AR       string `json:"ar"`
	AS       string `json:"as"`
	CC       string `json:"cc"`
	CXX      string `json:"cxx"`
	GDB      string `json:"gdb"`
	ObjCopy  string `json:"objcopy"`
	RanLib   string `json:"ranlib"`
	SizeTool string `json:"sizetool"`

	SizeProgRegexp string `json:"size_prog_regexp"`
	SizeDataRegexp string `json:"size_data_regexp"`
}

// Flash holds the derived flash parameters for image generation and upload.
type Flash struct {
	// Mode is the folded flash mode (qio and qout collapse to dio).
	Mode string `json:"mode"`

	// ImageFreq and BootFreq are esptool frequency tokens such as "40m".
	ImageFreq string `json:"image_freq"`
	BootFreq  string `json:"boot_freq"`

	// BootMode feeds bootloader image selection; opi memory types force it
	// to "opi" regardless of the flash mode.
	BootMode string `json:"boot_mode"`

	Size string `json:"size"`
}

// Image is one entry of the flash image table: an offset and the file
// written there.
type Image struct {
	Offset string `json:"offset"`
	Path   string `json:"path"`
}

// Bootloader describes the bootloader image for the board. When FromELF is
// set, Path names the prebuilt ELF the shim must run through elf2image; a
// variant that ships a ready .bin sets FromELF false.
type Bootloader struct {
	Path    string `json:"path"`
	FromELF bool   `json:"from_elf"`
}

// Plan is the complete link plan document.
type Plan struct {
	Board     string    `json:"board"`
	MCU       string    `json:"mcu"`
	Framework string    `json:"framework"`
	ProgName  string    `json:"progname"`
	Toolchain Toolchain `json:"toolchain"`
	Flash     Flash     `json:"flash"`

	Includes []string `json:"includes"`
	Defines  []string `json:"defines"`
	CCFlags  []string `json:"ccflags,omitempty"`
	CFlags   []string `json:"cflags,omitempty"`
	CXXFlags []string `json:"cxxflags,omitempty"`
	ASFlags  []string `json:"asflags,omitempty"`

	LinkFlags     []string `json:"linkflags,omitempty"`
	LinkerScripts []string `json:"linker_scripts,omitempty"`
	Libs          []string `json:"libs"`
	LibPaths      []string `json:"lib_paths"`

	// LibSourceDirs are extra Arduino library source roots.
	LibSourceDirs []string `json:"lib_source_dirs,omitempty"`

	// PartitionsCSV is the resolved partition table source.
	PartitionsCSV string `json:"partitions_csv,omitempty"`

	Bootloader *Bootloader `json:"bootloader,omitempty"`

	// FlashImages are written alongside the application image.
	FlashImages []Image `json:"flash_images,omitempty"`

	// AppOffset is where the application image is flashed.
	AppOffset string `json:"app_offset"`

	Upload      *UploadPlan `json:"upload"`
	Erase       *Command    `json:"erase"`
	EraseUpload []*Command  `json:"erase_upload,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Options parameterize the computation beyond the board descriptor.
type Options struct {
	// Framework is arduino or espidf.
	Framework string

	// PlatformDir is the platform checkout carrying the prebuilt tree.
	PlatformDir string

	// UploadProtocol overrides the descriptor's default protocol.
	UploadProtocol string

	// UploadPort is the serial port, IP address, or mDNS host to upload to.
	UploadPort string
}

// defaultAppOffset is where the application image lands unless a partition
// layout moves it.
const defaultAppOffset = "0x10000"

// Compute derives the link plan for a board and framework. It reads the
// prebuilt tree to resolve partition tables and bootloader images, so the
// pre-compilation pipeline must have run first.
func Compute(def *board.Definition, opts *Options) (*Plan, error) {
	flash, err := deriveFlash(def)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", def.ID, err)
	}

	plan := &Plan{
		Board:     def.ID,
		MCU:       def.Build.MCU,
		Framework: opts.Framework,
		ProgName:  "firmware",
		Toolchain: defaultToolchain(),
		Flash:     flash,
		AppOffset: defaultAppOffset,
	}

	prebuiltDir := filepath.Join(opts.PlatformDir, "prebuilt")
	switch opts.Framework {
	case config.FrameworkArduino:
		if err := applyArduino(plan, def, prebuiltDir); err != nil {
			return nil, fmt.Errorf("board %s: %w", def.ID, err)
		}
	case config.FrameworkESPIDF:
		applyESPIDF(plan, def, prebuiltDir)
	default:
		return nil, fmt.Errorf("board %s: unsupported framework %q", def.ID, opts.Framework)
	}

	applyUpload(plan, def, opts, prebuiltDir)
	return plan, nil
}

// defaultToolchain returns the Xtensa tool names and size regexps every plan
// starts from.
func defaultToolchain() Toolchain {
	return Toolchain{
		AR:       "xtensa-esp32-elf-ar",
		AS:       "xtensa-esp32-elf-as",
		CC:       "xtensa-esp32-elf-gcc",
		CXX:      "xtensa-esp32-elf-g++",
		GDB:      "xtensa-esp32-elf-gdb",
		ObjCopy:  "esptool.py",
		RanLib:   "xtensa-esp32-elf-ranlib",
		SizeTool: "xtensa-esp32-elf-size",

		SizeProgRegexp: `^(?:\.iram0\.text|\.iram0\.vectors|\.dram0\.data|\.flash\.text|\.flash\.rodata|)\s+(\d+).*`,
		SizeDataRegexp: `^(?:\.dram0\.data|\.dram0\.bss|\.noinit)\s+(\d+).*`,
	}
}
