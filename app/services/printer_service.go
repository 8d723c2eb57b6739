package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"OrderDesk/app/models"

	"gorm.io/gorm"
)

// commandRunner runs an external program with stdin, returning combined output
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

// PrinterService delivers rendered documents to thermal printers
type PrinterService struct {
	db          *gorm.DB
	dialTimeout time.Duration
	run         commandRunner
}

// NewPrinterService creates a printer service. db holds configured printers
// and may be nil, in which case every name is treated as a spooler queue.
func NewPrinterService(db *gorm.DB) *PrinterService {
	return &PrinterService{
		db:          db,
		dialTimeout: 5 * time.Second,
		run:         runCommand,
	}
}

// ResolvePrinter finds the configured printer called name. Unknown names are
// sent to the OS spooler queue of that name; an empty name means the default
// printer.
func (s *PrinterService) ResolvePrinter(ctx context.Context, name string) (*models.PrinterConfig, error) {
	if s.db != nil {
		var cfg models.PrinterConfig
		q := s.db.WithContext(ctx).Where("is_active = ?", true)
		if name == "" {
			q = q.Where("is_default = ?", true)
		} else {
			q = q.Where("name = ?", name)
		}
		err := q.First(&cfg).Error
		if err == nil {
			return &cfg, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load printer config: %w", err)
		}
	}

	return &models.PrinterConfig{
		Name:       name,
		Type:       "spool",
		Address:    name,
		PaperWidth: 80,
		IsActive:   true,
		AutoCut:    true,
		PrintQR:    true,
	}, nil
}

// SavePrinter creates or updates a printer by name
func (s *PrinterService) SavePrinter(ctx context.Context, cfg *models.PrinterConfig) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if cfg.Name == "" {
		return fmt.Errorf("printer name is required")
	}

	var existing models.PrinterConfig
	err := s.db.WithContext(ctx).Where("name = ?", cfg.Name).First(&existing).Error
	switch {
	case err == nil:
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		return s.db.WithContext(ctx).Save(cfg).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(cfg).Error
	default:
		return fmt.Errorf("failed to load printer config: %w", err)
	}
}

// ListPrinters returns the configured printers
func (s *PrinterService) ListPrinters(ctx context.Context) ([]models.PrinterConfig, error) {
	if s.db == nil {
		return nil, nil
	}
	var printers []models.PrinterConfig
	if err := s.db.WithContext(ctx).Order("name").Find(&printers).Error; err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	return printers, nil
}

// Print resolves name and sends doc to it
func (s *PrinterService) Print(ctx context.Context, name string, doc []byte) error {
	printer, err := s.ResolvePrinter(ctx, name)
	if err != nil {
		return err
	}
	return s.Send(ctx, printer, doc)
}

// Send writes doc to printer over its configured connection
func (s *PrinterService) Send(ctx context.Context, printer *models.PrinterConfig, doc []byte) error {
	if printer.Type == "spool" {
		return s.spool(ctx, printer.Address, doc)
	}

	conn, err := s.connectPrinter(ctx, printer)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write(doc); err != nil {
		return fmt.Errorf("failed to write to printer %s: %w", printer.Name, err)
	}
	return nil
}

func (s *PrinterService) connectPrinter(ctx context.Context, printer *models.PrinterConfig) (io.WriteCloser, error) {
	switch printer.Type {
	case "network":
		port := printer.Port
		if port == 0 {
			port = 9100
		}
		address := net.JoinHostPort(printer.Address, fmt.Sprintf("%d", port))
		dialer := net.Dialer{Timeout: s.dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to network printer at %s: %w", address, err)
		}
		conn.SetWriteDeadline(time.Now().Add(s.dialTimeout))
		return conn, nil

	case "usb", "serial":
		f, err := os.OpenFile(printer.Address, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s printer at %s: %w", printer.Type, printer.Address, err)
		}
		return f, nil

	case "file":
		if err := os.MkdirAll(filepath.Dir(printer.Address), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.OpenFile(printer.Address, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open output file at %s: %w", printer.Address, err)
		}
		return f, nil

	default:
		return nil, fmt.Errorf("unsupported printer type: %s", printer.Type)
	}
}

// spool hands raw bytes to the OS print spooler
func (s *PrinterService) spool(ctx context.Context, queue string, doc []byte) error {
	if runtime.GOOS == "windows" {
		return s.spoolWindows(ctx, queue, doc)
	}

	args := []string{"-o", "raw"}
	if queue != "" {
		args = append([]string{"-d", queue}, args...)
	}
	output, err := s.run(ctx, doc, "lp", args...)
	if err != nil {
		return fmt.Errorf("failed to spool to printer '%s': %v - %s", queue, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// rawPrintScript sends a file to a Windows printer as a RAW document
const rawPrintScript = `
$code = @"
using System;
using System.Runtime.InteropServices;
public class RawPrinter {
    [StructLayout(LayoutKind.Sequential, CharSet = CharSet.Unicode)]
    public struct DOCINFO { public string pDocName; public string pOutputFile; public string pDataType; }
    [DllImport("winspool.drv", CharSet = CharSet.Unicode, SetLastError = true)]
    public static extern bool OpenPrinter(string name, out IntPtr h, IntPtr d);
    [DllImport("winspool.drv", SetLastError = true)] public static extern bool ClosePrinter(IntPtr h);
    [DllImport("winspool.drv", CharSet = CharSet.Unicode, SetLastError = true)]
    public static extern bool StartDocPrinter(IntPtr h, int level, ref DOCINFO di);
    [DllImport("winspool.drv", SetLastError = true)] public static extern bool EndDocPrinter(IntPtr h);
    [DllImport("winspool.drv", SetLastError = true)]
    public static extern bool WritePrinter(IntPtr h, byte[] bytes, int count, out int written);
    public static bool Send(string name, byte[] bytes) {
        IntPtr h;
        if (!OpenPrinter(name, out h, IntPtr.Zero)) { return false; }
        DOCINFO di = new DOCINFO(); di.pDocName = "KOT"; di.pDataType = "RAW";
        int written = 0;
        bool ok = StartDocPrinter(h, 1, ref di) && WritePrinter(h, bytes, bytes.Length, out written);
        EndDocPrinter(h); ClosePrinter(h);
        return ok;
    }
}
"@
Add-Type -TypeDefinition $code -Language CSharp
$name = $args[0]
if ($name -eq '') { $name = (Get-CimInstance Win32_Printer | Where-Object Default).Name }
if (-not [RawPrinter]::Send($name, [System.IO.File]::ReadAllBytes($args[1]))) { throw "Failed to send data to printer" }
`

func (s *PrinterService) spoolWindows(ctx context.Context, queue string, doc []byte) error {
	tmpFile, err := os.CreateTemp("", "kot_*.prn")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(doc); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	tmpFile.Close()

	script := "& {" + rawPrintScript + "} '" + strings.ReplaceAll(queue, "'", "''") + "' '" + tmpFile.Name() + "'"
	output, err := s.run(ctx, nil, "powershell", "-NoProfile", "-Command", script)
	if err != nil {
		return fmt.Errorf("failed to send to Windows printer '%s': %v - %s", queue, err, string(output))
	}
	return nil
}
