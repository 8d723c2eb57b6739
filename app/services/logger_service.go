package services

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// LoggerService writes tagged log lines to stdout and a daily log file
type LoggerService struct {
	mu         sync.Mutex
	logDir     string
	logFile    *os.File
	logger     *log.Logger
	currentDay string
	now        func() time.Time
}

// NewLoggerService creates a logger writing to logDir/YYYY-MM-DD.log and
// routes the standard logger through it
func NewLoggerService(logDir string) *LoggerService {
	s := &LoggerService{logDir: logDir, now: time.Now}
	s.initializeLogger()
	return s
}

// NewLoggerServiceWithWriter creates a logger that only writes to w.
// The standard logger is left alone.
func NewLoggerServiceWithWriter(w io.Writer) *LoggerService {
	return &LoggerService{
		logger: log.New(w, "", log.LstdFlags),
		now:    time.Now,
	}
}

func (s *LoggerService) initializeLogger() {
	if s.logDir == "" {
		s.logDir = "logs"
	}

	if err := os.MkdirAll(s.logDir, 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
		s.logDir = "logs"
		os.MkdirAll(s.logDir, 0755)
	}

	if err := s.rotateLogFile(); err != nil {
		log.Printf("Warning: Could not create log file: %v. Logging to stdout only.", err)
		s.logger = log.New(os.Stdout, "", log.LstdFlags|log.Lshortfile)
		log.SetOutput(os.Stdout)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		return
	}

	multiWriter := io.MultiWriter(os.Stdout, s.logFile)
	s.logger = log.New(multiWriter, "", log.LstdFlags|log.Lshortfile)

	// Replace standard logger so services using log.Printf land in the file too
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	s.LogInfo("Logger initialized", fmt.Sprintf("Log directory: %s", s.logDir))
}

// rotateLogFile opens the file for the current day
func (s *LoggerService) rotateLogFile() error {
	today := s.now().Format("2006-01-02")
	if s.currentDay == today && s.logFile != nil {
		return nil
	}

	if s.logFile != nil {
		s.logFile.Close()
	}

	logFilePath := filepath.Join(s.logDir, fmt.Sprintf("%s.log", today))
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	s.logFile = file
	s.currentDay = today
	return nil
}

// checkAndRotate switches to a new file after midnight. File-less loggers never rotate.
func (s *LoggerService) checkAndRotate() {
	if s.logDir == "" {
		return
	}
	if s.currentDay == s.now().Format("2006-01-02") {
		return
	}
	if err := s.rotateLogFile(); err != nil {
		return
	}
	multiWriter := io.MultiWriter(os.Stdout, s.logFile)
	s.logger.SetOutput(multiWriter)
	log.SetOutput(multiWriter)
}

type logLevel string

const (
	levelInfo    logLevel = "INFO"
	levelWarning logLevel = "WARNING"
	levelError   logLevel = "ERROR"
	levelPanic   logLevel = "PANIC"
)

// write prints "[LEVEL] message | detail | detail"
func (s *LoggerService) write(level logLevel, message string, details []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkAndRotate()

	line := message
	if len(details) > 0 {
		line += " | " + strings.Join(details, " | ")
	}
	s.logger.Printf("[%s] %s", level, line)
}

// LogInfo logs an informational message
func (s *LoggerService) LogInfo(message string, details ...string) {
	s.write(levelInfo, message, details)
}

// LogWarning logs a warning message
func (s *LoggerService) LogWarning(message string, details ...string) {
	s.write(levelWarning, message, details)
}

// LogError logs an error message
func (s *LoggerService) LogError(message string, err error, details ...string) {
	if err != nil {
		message = fmt.Sprintf("%s | Error: %v", message, err)
	}
	s.write(levelError, message, details)
}

// LogPanic logs a panic with stack trace
func (s *LoggerService) LogPanic(recovered interface{}) {
	s.write(levelPanic, fmt.Sprintf("Recovered from panic: %v", recovered), []string{"Stack trace:\n" + string(debug.Stack())})
}

// RecoverPanic is deferred at the top of goroutines
func (s *LoggerService) RecoverPanic() {
	if r := recover(); r != nil {
		s.LogPanic(r)
	}
}

// GetLogDirectory returns the directory where logs are stored
func (s *LoggerService) GetLogDirectory() string {
	return s.logDir
}

// CleanOldLogs removes log files older than daysToKeep
func (s *LoggerService) CleanOldLogs(daysToKeep int) error {
	if s.logDir == "" {
		return nil
	}
	files, err := os.ReadDir(s.logDir)
	if err != nil {
		return err
	}

	cutoffDate := s.now().AddDate(0, 0, -daysToKeep)

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".log" {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffDate) {
			filePath := filepath.Join(s.logDir, file.Name())
			s.LogInfo("Deleting old log file", filePath)
			os.Remove(filePath)
		}
	}

	return nil
}

// Close closes the log file
func (s *LoggerService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
}
