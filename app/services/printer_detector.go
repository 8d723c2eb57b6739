package services

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// DetectedPrinter represents a printer installed in the OS spooler
type DetectedPrinter struct {
	Name      string `json:"name"`
	Type      string `json:"type"` // always "spool": jobs go through the OS queue
	Port      string `json:"port,omitempty"`
	IsDefault bool   `json:"is_default"`
	Status    string `json:"status"` // "online", "offline", "unknown"
	Model     string `json:"model,omitempty"`
}

// DetectSystemPrinters lists printers known to CUPS or the Windows spooler
func DetectSystemPrinters() ([]DetectedPrinter, error) {
	switch runtime.GOOS {
	case "windows":
		return detectWindowsPrinters()
	case "linux", "darwin":
		return detectCUPSPrinters()
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// detectWindowsPrinters queries Get-Printer through PowerShell
func detectWindowsPrinters() ([]DetectedPrinter, error) {
	cmd := exec.Command("powershell", "-NoProfile", "-Command",
		`Get-CimInstance Win32_Printer | Select-Object Name, DriverName, PortName, Default, WorkOffline | ConvertTo-Json`)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to detect printers: %w", err)
	}
	return parseWindowsPrinterJSON(output)
}

type windowsPrinter struct {
	Name        string `json:"Name"`
	DriverName  string `json:"DriverName"`
	PortName    string `json:"PortName"`
	Default     bool   `json:"Default"`
	WorkOffline bool   `json:"WorkOffline"`
}

// parseWindowsPrinterJSON accepts both the array and single object forms
// ConvertTo-Json produces
func parseWindowsPrinterJSON(output []byte) ([]DetectedPrinter, error) {
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil, nil
	}

	var raw []windowsPrinter
	if strings.HasPrefix(trimmed, "{") {
		var one windowsPrinter
		if err := json.Unmarshal([]byte(trimmed), &one); err != nil {
			return nil, fmt.Errorf("failed to parse printer list: %w", err)
		}
		raw = append(raw, one)
	} else if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse printer list: %w", err)
	}

	printers := make([]DetectedPrinter, 0, len(raw))
	for _, p := range raw {
		if p.Name == "" {
			continue
		}
		status := "online"
		if p.WorkOffline {
			status = "offline"
		}
		printers = append(printers, DetectedPrinter{
			Name:      p.Name,
			Type:      "spool",
			Port:      p.PortName,
			IsDefault: p.Default,
			Status:    status,
			Model:     p.DriverName,
		})
	}
	return printers, nil
}

// detectCUPSPrinters uses lpstat on Linux and macOS
func detectCUPSPrinters() ([]DetectedPrinter, error) {
	output, err := exec.Command("lpstat", "-p", "-d").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to detect printers (is CUPS installed?): %w", err)
	}
	return parseCUPSOutput(string(output)), nil
}

// parseCUPSOutput parses `lpstat -p -d`. The default destination line comes
// after the printer lines.
func parseCUPSOutput(output string) []DetectedPrinter {
	var printers []DetectedPrinter
	var defaultPrinter string

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "system default destination:") {
			defaultPrinter = strings.TrimSpace(strings.TrimPrefix(line, "system default destination:"))
			continue
		}

		// "printer NAME is idle.  enabled since ..."
		if strings.HasPrefix(line, "printer ") {
			parts := strings.Fields(line)
			if len(parts) < 2 {
				continue
			}
			printer := DetectedPrinter{
				Name:   parts[1],
				Type:   "spool",
				Status: "unknown",
			}
			switch {
			case strings.Contains(line, "disabled"):
				printer.Status = "offline"
			case strings.Contains(line, "idle"), strings.Contains(line, "printing"):
				printer.Status = "online"
			}
			printers = append(printers, printer)
		}
	}

	for i := range printers {
		printers[i].IsDefault = printers[i].Name == defaultPrinter
	}
	return printers
}
