package linkplan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/espforge/espforge/internal/board"
)

// otaHostPattern recognizes an upload port that is really an IP address or
// an mDNS host, which means the user wants an over-the-air upload even if
// the protocol says otherwise.
var otaHostPattern = regexp.MustCompile(`^"?((([0-9]{1,3}\.){3}[0-9]{1,3})|[^\\/]+\.local)"?$`)

// firmwareBin is the application image the upload commands flash.
var firmwareBin = filepath.Join(BuildDirVar, "firmware.bin")

// Command is one external invocation of the upload or erase flow.
type Command struct {
	Tool        string   `json:"tool"`
	Args        []string `json:"args"`
	Description string   `json:"description,omitempty"`
}

// UploadPlan describes how the firmware gets onto the device. A protocol
// that cannot be planned (espota without a port) carries an Error instead of
// a Command; an unknown protocol carries neither.
type UploadPlan struct {
	Protocol string   `json:"protocol"`
	Command  *Command `json:"command,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// applyUpload computes the upload, erase, and erase-then-upload plans.
func applyUpload(plan *Plan, def *board.Definition, opts *Options, prebuiltDir string) {
	protocol := opts.UploadProtocol
	if protocol == "" {
		protocol = def.Upload.Protocol
	}
	port := opts.UploadPort

	if protocol != "espota" && port != "" && otaHostPattern.MatchString(port) {
		protocol = "espota"
		plan.Warnings = append(plan.Warnings,
			"upload port looks like an IP address or host name of an ESP device; "+
				"upload protocol switched to espota. Specify `upload_protocol = espota` "+
				"in the project configuration to silence this.")
	}

	upload := &UploadPlan{Protocol: protocol}
	switch {
	case protocol == "espota":
		upload = espotaPlan(port, prebuiltDir)
	case protocol == "esptool":
		upload.Command = esptoolCommand(plan, def, port)
	case protocol == "dfu":
		upload.Command = dfuCommand(def)
	case protocol == "custom":
		// The project supplies its own upload command.
	case debugTool(def, protocol) != nil:
		upload.Command = openocdCommand(plan, def, protocol)
	default:
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("unknown upload protocol %q", protocol))
	}
	plan.Upload = upload

	plan.Erase = &Command{
		Tool:        "esptool.py",
		Args:        []string{"--chip", def.Build.MCU, "--port", port, "erase_flash"},
		Description: "Erase Flash",
	}
	if upload.Command != nil {
		plan.EraseUpload = []*Command{plan.Erase, upload.Command}
	}
}

func espotaPlan(port, prebuiltDir string) *UploadPlan {
	upload := &UploadPlan{Protocol: "espota"}
	if port == "" {
		upload.Error = "specify the IP address or host name of the ESP device " +
			"with the upload port option for over-the-air uploads"
		return upload
	}

	script := filepath.Join(prebuiltDir, "include", "arduino", "tools", "espota.py")
	if !isFile(script) {
		upload.Error = fmt.Sprintf("espota.py not found at %s; run the precompile pipeline first", script)
		return upload
	}

	upload.Command = &Command{
		Tool:        script,
		Args:        []string{"--debug", "--progress", "-i", port, "-f", firmwareBin},
		Description: "Uploading over the air",
	}
	return upload
}

func esptoolCommand(plan *Plan, def *board.Definition, port string) *Command {
	speed := def.Upload.Speed
	if speed == 0 {
		speed = 115200
	}
	beforeReset := def.Upload.BeforeReset
	if beforeReset == "" {
		beforeReset = "default_reset"
	}
	afterReset := def.Upload.AfterReset
	if afterReset == "" {
		afterReset = "hard_reset"
	}

	args := []string{
		"--chip", def.Build.MCU,
		"--port", port,
		"--baud", strconv.Itoa(speed),
		"--before", beforeReset,
		"--after", afterReset,
		"write_flash", "-z",
		"--flash_mode", plan.Flash.Mode,
		"--flash_freq", plan.Flash.ImageFreq,
		"--flash_size", "detect",
	}
	for _, image := range plan.FlashImages {
		args = append(args, image.Offset, image.Path)
	}
	args = append(args, plan.AppOffset, firmwareBin)

	return &Command{Tool: "esptool.py", Args: args, Description: "Uploading firmware"}
}

func dfuCommand(def *board.Definition) *Command {
	hwids := def.Build.HWIDs
	if len(hwids) == 0 {
		hwids = [][]string{{"0x2341", "0x0070"}}
	}

	ids := make([]string, 0, len(hwids))
	for _, hwid := range hwids {
		if len(hwid) == 2 {
			ids = append(ids, hwid[0]+":"+hwid[1])
		}
	}

	return &Command{
		Tool:        "dfu-util",
		Args:        []string{"-d", strings.Join(ids, ","), "-Q", "-D", firmwareBin},
		Description: "Uploading firmware",
	}
}

func debugTool(def *board.Definition, protocol string) *board.DebugTool {
	tool, ok := def.Debug.Tools[protocol]
	if !ok {
		return nil
	}
	return &tool
}

func openocdCommand(plan *Plan, def *board.Definition, protocol string) *Command {
	tool := debugTool(def, protocol)

	args := []string{"-d1"}
	args = append(args, tool.Server.Arguments...)
	args = append(args,
		"-c", "adapter speed 5000",
		"-c", fmt.Sprintf("program_esp {{%s}} %s verify", firmwareBin, plan.AppOffset),
	)
	for _, image := range plan.FlashImages {
		args = append(args, "-c", fmt.Sprintf("program_esp {{%s}} %s verify", image.Path, image.Offset))
	}
	args = append(args, "-c", "reset run; shutdown")

	return &Command{Tool: "openocd", Args: args, Description: "Uploading firmware"}
}
