package linkplan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/espforge/espforge/internal/board"
)

// idfVersion is the ESP-IDF release the prebuilt archives were built from.
const idfVersion = "v5.1.4-698-g96de2fbde7"

// espidfLinkerScripts is the -T list for the prebuilt ESP-IDF link, in link
// order.
var espidfLinkerScripts = []string{
	"esp32_out.ld",
	"esp32.project.ld",
	"esp32.rom.ld",
	"esp32.rom.api.ld",
	"esp32.rom.libgcc.ld",
	"esp32.rom.newlib-data.ld",
	"esp32.rom.syscalls.ld",
	"esp32.peripherals.ld",
}

// applyESPIDF fills in the ESP-IDF framework parts of the plan. The flag
// sets are fixed: they must match the flags the prebuilt archive was
// compiled with.
func applyESPIDF(plan *Plan, def *board.Definition, prebuiltDir string) {
	includeDir := filepath.Join(prebuiltDir, "include")

	plan.Includes = append(plan.Includes, includeDir)
	plan.Includes = append(plan.Includes, idfComponentIncludes(filepath.Join(includeDir, "esp-idf", def.Build.MCU))...)

	plan.ASFlags = append(plan.ASFlags, "-x", "assembler-with-cpp")

	plan.CCFlags = append(plan.CCFlags,
		"-mlongcalls",
		"-Wno-frame-address",
		"-ffunction-sections",
		"-fdata-sections",
		"-Wno-error=unused-function",
		"-Wno-error=unused-variable",
		"-Wno-error=deprecated-declarations",
		"-Wno-unused-parameter",
		"-Wno-sign-compare",
		"-ggdb",
		"-Os",
		"-freorder-blocks",
		"-fstack-protector",
		"-fstrict-volatile-bitfields",
	)
	plan.CFlags = append(plan.CFlags, "-std=gnu99", "-Wno-old-style-declaration")
	plan.CXXFlags = append(plan.CXXFlags, "-std=gnu++11", "-fexceptions", "-fno-rtti")

	plan.Defines = append(plan.Defines,
		"ESP32",
		"ESP_PLATFORM",
		fmt.Sprintf("F_CPU=%s", def.Build.FCPU),
		"HAVE_CONFIG_H",
		`MBEDTLS_CONFIG_FILE="mbedtls/esp_config.h"`,
		fmt.Sprintf("IDF_VER=%q", idfVersion),
		"ARDUINO_ARCH_ESP32",
	)

	plan.LinkFlags = append(plan.LinkFlags,
		"-mlongcalls",
		"-Wl,--cref",
		"-Wl,--gc-sections",
		"-fno-rtti",
		"-fno-lto",
		"-Wl,--wrap=longjmp",
		"-Wl,--undefined=uxTopUsedPriority",
		"-u", "esp_app_desc",
		"-u", "pthread_include_pthread_impl",
		"-u", "pthread_include_pthread_cond_impl",
		"-u", "pthread_include_pthread_local_storage_impl",
		"-u", "pthread_include_pthread_rwlock_impl",
		"-u", "include_esp_phy_override",
		"-u", "ld_include_highint_hdl",
		"-u", "start_app",
		"-u", "start_app_other_cores",
		"-u", "__ubsan_include",
		fmt.Sprintf("-Wl,-Map=%s", filepath.Join(BuildDirVar, "firmware.map")),
	)
	plan.LinkerScripts = append(plan.LinkerScripts, espidfLinkerScripts...)

	plan.Libs = append(plan.Libs, "espforge_espidf", "gcc", "stdc++", "m", "c")
	plan.LibPaths = append(plan.LibPaths,
		filepath.Join(prebuiltDir, "ld"),
		prebuiltDir,
	)
}

// idfComponentIncludes collects the include directories of the deployed
// ESP-IDF components: the standard include variants per component, plus the
// soc component's register directories.
func idfComponentIncludes(headersDir string) []string {
	entries, err := os.ReadDir(headersDir)
	if err != nil {
		return nil
	}

	var includes []string
	addIfDir := func(path string) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			includes = append(includes, path)
		}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		componentDir := filepath.Join(headersDir, entry.Name())
		for _, inc := range []string{"include", "platform_include", "include_bt"} {
			addIfDir(filepath.Join(componentDir, inc))
		}
		if entry.Name() == "soc" {
			socEntries, err := os.ReadDir(componentDir)
			if err != nil {
				continue
			}
			for _, socEntry := range socEntries {
				if !socEntry.IsDir() {
					continue
				}
				registerDir := filepath.Join(componentDir, socEntry.Name(), "register")
				addIfDir(registerDir)
				addIfDir(filepath.Join(registerDir, "soc"))
			}
		}
	}
	return includes
}
