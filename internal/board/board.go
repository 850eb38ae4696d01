// Package board loads and validates the PlatformIO board and platform
// descriptors shipped with the platform. The JSON layout is fixed by
// PlatformIO, so the structs here mirror its schema field for field.
package board

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Definition is a single board descriptor (boards/<name>.json).
type Definition struct {
	Build        BuildSection  `json:"build"`
	Connectivity []string      `json:"connectivity,omitempty"`
	Debug        DebugSection  `json:"debug,omitempty"`
	Frameworks   []string      `json:"frameworks"`
	Name         string        `json:"name"`
	Upload       UploadSection `json:"upload"`
	URL          string        `json:"url,omitempty"`
	Vendor       string        `json:"vendor,omitempty"`

	// ID is the descriptor's file stem, not stored in the JSON document.
	ID string `json:"-"`
}

// BuildSection mirrors the descriptor's "build" object.
type BuildSection struct {
	Arduino     ArduinoBuild `json:"arduino,omitempty"`
	Boot        string       `json:"boot,omitempty"`
	Core        string       `json:"core"`
	ExtraFlags  string       `json:"extra_flags,omitempty"`
	FCPU        string       `json:"f_cpu"`
	FFlash      string       `json:"f_flash"`
	FImage      string       `json:"f_image,omitempty"`
	FBoot       string       `json:"f_boot,omitempty"`
	FlashMode   string       `json:"flash_mode"`
	HWIDs       [][]string   `json:"hwids,omitempty"`
	MCU         string       `json:"mcu"`
	Partitions  string       `json:"partitions,omitempty"`
	Variant     string       `json:"variant"`
	VariantsDir string       `json:"variants_dir,omitempty"`
}

// ArduinoBuild mirrors the descriptor's "build.arduino" object.
type ArduinoBuild struct {
	LDScript         string `json:"ldscript,omitempty"`
	MemoryType       string `json:"memory_type,omitempty"`
	Partitions       string `json:"partitions,omitempty"`
	CustomBootloader string `json:"custom_bootloader,omitempty"`
}

// DebugSection mirrors the descriptor's "debug" object.
type DebugSection struct {
	OpenOCDBoard string               `json:"openocd_board,omitempty"`
	Tools        map[string]DebugTool `json:"tools,omitempty"`
}

// DebugTool describes one debug probe configuration.
type DebugTool struct {
	Server DebugServer `json:"server"`
}

// DebugServer holds the probe's server invocation arguments.
type DebugServer struct {
	Arguments  []string `json:"arguments,omitempty"`
	Executable string   `json:"executable,omitempty"`
}

// ArduinoUpload mirrors the descriptor's "upload.arduino" object.
type ArduinoUpload struct {
	FlashExtraImages    [][]string `json:"flash_extra_images,omitempty"`
	TinyUF2Image        string     `json:"tinyuf2_image,omitempty"`
	UF2BootloaderOffset string     `json:"uf2_bootloader_offset,omitempty"`
}

// UploadSection mirrors the descriptor's "upload" object.
type UploadSection struct {
	Arduino           ArduinoUpload `json:"arduino,omitempty"`
	FlashSize         string        `json:"flash_size"`
	MaximumRAMSize    int64         `json:"maximum_ram_size"`
	MaximumSize       int64         `json:"maximum_size"`
	Protocol          string        `json:"protocol,omitempty"`
	Protocols         []string      `json:"protocols,omitempty"`
	RequireUploadPort bool          `json:"require_upload_port,omitempty"`
	Speed             int           `json:"speed,omitempty"`
	BeforeReset       string        `json:"before_reset,omitempty"`
	AfterReset        string        `json:"after_reset,omitempty"`
	Use1200bpsTouch   bool          `json:"use_1200bps_touch,omitempty"`
	WaitForUploadPort bool          `json:"wait_for_upload_port,omitempty"`
}

// supportedMCUs are the chips this platform's toolchain packages cover.
var supportedMCUs = map[string]bool{
	"esp32":   true,
	"esp32s2": true,
	"esp32s3": true,
	"esp32c3": true,
	"esp32p4": true,
}

// Load reads a single board descriptor from path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read board descriptor %s: %w", path, err)
	}
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode board descriptor %s: %w", path, err)
	}
	def.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	return &def, nil
}

// LoadDir reads every .json descriptor under dir, keyed by board ID, sorted
// access via IDs.
func LoadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read boards directory %s: %w", dir, err)
	}

	boards := make(map[string]*Definition)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		def, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		boards[def.ID] = def
	}
	return boards, nil
}

// IDs returns the sorted board IDs of a LoadDir result.
func IDs(boards map[string]*Definition) []string {
	ids := make([]string, 0, len(boards))
	for id := range boards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FrequencyHz parses a descriptor frequency value. Descriptors carry these
// as decimal strings with an optional trailing "L" (a leftover from C macro
// definitions that PlatformIO preserves).
func FrequencyHz(value string) (int64, error) {
	trimmed := strings.TrimSuffix(value, "L")
	hz, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", value, err)
	}
	if hz <= 0 {
		return 0, fmt.Errorf("invalid frequency %q: must be positive", value)
	}
	return hz, nil
}

// FlashSizeBytes parses an upload.flash_size value such as "4MB".
func FlashSizeBytes(value string) (int64, error) {
	num, ok := strings.CutSuffix(value, "MB")
	if !ok {
		return 0, fmt.Errorf("invalid flash_size %q: expected <n>MB", value)
	}
	mb, err := strconv.ParseInt(num, 10, 64)
	if err != nil || mb <= 0 {
		return 0, fmt.Errorf("invalid flash_size %q: expected <n>MB", value)
	}
	return mb << 20, nil
}

// Validate checks the descriptor's invariants and returns every violation.
func (d *Definition) Validate(platformFrameworks []string) []error {
	var errs []error

	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if d.Name == "" {
		fail("board %s: name must not be empty", d.ID)
	}
	if !supportedMCUs[d.Build.MCU] {
		fail("board %s: unsupported mcu %q", d.ID, d.Build.MCU)
	}
	if _, err := FrequencyHz(d.Build.FCPU); err != nil {
		fail("board %s: build.f_cpu: %v", d.ID, err)
	}
	if _, err := FrequencyHz(d.Build.FFlash); err != nil {
		fail("board %s: build.f_flash: %v", d.ID, err)
	}
	if d.Build.FImage != "" {
		if _, err := FrequencyHz(d.Build.FImage); err != nil {
			fail("board %s: build.f_image: %v", d.ID, err)
		}
	}
	if _, err := FlashSizeBytes(d.Upload.FlashSize); err != nil {
		fail("board %s: upload.flash_size: %v", d.ID, err)
	}
	if d.Upload.MaximumSize <= 0 {
		fail("board %s: upload.maximum_size must be positive", d.ID)
	}
	if d.Upload.MaximumRAMSize <= 0 {
		fail("board %s: upload.maximum_ram_size must be positive", d.ID)
	}
	if len(d.Frameworks) == 0 {
		fail("board %s: frameworks must not be empty", d.ID)
	}

	supported := make(map[string]bool, len(platformFrameworks))
	for _, fw := range platformFrameworks {
		supported[fw] = true
	}
	for _, fw := range d.Frameworks {
		if len(platformFrameworks) > 0 && !supported[fw] {
			fail("board %s: framework %q not provided by the platform", d.ID, fw)
		}
	}

	return errs
}
