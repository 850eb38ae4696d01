package linkplan

import (
	"fmt"

	"github.com/espforge/espforge/internal/board"
)

// FoldFlashMode collapses the quad modes to dio. The ROM bootloader starts
// in dual mode; the quad modes are only entered after the second stage
// reconfigures the flash, so images are always generated for dio.
func FoldFlashMode(mode string) string {
	if mode == "qio" || mode == "qout" {
		return "dio"
	}
	return mode
}

// FrequencyToken converts a descriptor frequency to the esptool flag token,
// e.g. 40000000 becomes "40m".
func FrequencyToken(value string) (string, error) {
	hz, err := board.FrequencyHz(value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%dm", hz/1000000), nil
}

// deriveFlash computes the flash parameter block from a board descriptor.
// f_image and f_boot fall back to f_flash when absent, matching what the
// descriptors rely on.
func deriveFlash(def *board.Definition) (Flash, error) {
	flashFreq, err := FrequencyToken(def.Build.FFlash)
	if err != nil {
		return Flash{}, fmt.Errorf("build.f_flash: %w", err)
	}

	imageFreq := flashFreq
	if def.Build.FImage != "" {
		if imageFreq, err = FrequencyToken(def.Build.FImage); err != nil {
			return Flash{}, fmt.Errorf("build.f_image: %w", err)
		}
	}

	bootFreq := flashFreq
	if def.Build.FBoot != "" {
		if bootFreq, err = FrequencyToken(def.Build.FBoot); err != nil {
			return Flash{}, fmt.Errorf("build.f_boot: %w", err)
		}
	}

	return Flash{
		Mode:      FoldFlashMode(def.Build.FlashMode),
		ImageFreq: imageFreq,
		BootFreq:  bootFreq,
		BootMode:  bootMode(def),
		Size:      def.Upload.FlashSize,
	}, nil
}

// bootMode picks the bootloader image's flash mode. Octal PSRAM memory
// types require the opi bootloader regardless of the configured flash mode.
func bootMode(def *board.Definition) string {
	memoryType := def.Build.Arduino.MemoryType
	if memoryType == "opi_opi" || memoryType == "opi_qspi" {
		return "opi"
	}
	if def.Build.Boot != "" {
		return def.Build.Boot
	}
	return def.Build.FlashMode
}

// bootloaderOffset returns where the bootloader image is flashed for a chip.
func bootloaderOffset(mcu string) string {
	switch mcu {
	case "esp32", "esp32s2":
		return "0x1000"
	case "esp32p4":
		return "0x2000"
	default:
		return "0x0000"
	}
}
