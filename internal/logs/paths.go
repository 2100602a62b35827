package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDirName = "mcpconformance"

// Dir returns the standard log directory for the current OS.
func Dir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		return windowsLogDir()
	case "darwin":
		return macOSLogDir()
	case "linux":
		return linuxLogDir()
	default:
		return defaultLogDir()
	}
}

func windowsLogDir() (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return defaultLogDir()
		}
		localAppData = filepath.Join(userProfile, "AppData", "Local")
	}
	return filepath.Join(localAppData, appDirName, "logs"), nil
}

func macOSLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return defaultLogDir()
	}
	return filepath.Join(homeDir, "Library", "Logs", appDirName), nil
}

// linuxLogDir follows the XDG Base Directory Specification.
func linuxLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return defaultLogDir()
	}
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, appDirName, "logs"), nil
}

func defaultLogDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName, "logs"), nil
	}
	return filepath.Join(homeDir, "."+appDirName, "logs"), nil
}

// EnsureDir creates the log directory if it does not exist.
func EnsureDir(logDir string) error {
	return os.MkdirAll(logDir, 0o755)
}

// FilePath returns the full path for a log file in the standard log
// directory, creating the directory as needed.
func FilePath(filename string) (string, error) {
	logDir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := EnsureDir(logDir); err != nil {
		return "", err
	}
	return filepath.Join(logDir, filename), nil
}

// FilePathWithDir is FilePath with a custom directory override. A leading
// ~/ expands to the user's home.
func FilePathWithDir(logDir, filename string) (string, error) {
	if logDir == "" {
		return FilePath(filename)
	}
	if strings.HasPrefix(logDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		logDir = filepath.Join(homeDir, logDir[2:])
	}
	if err := EnsureDir(logDir); err != nil {
		return "", err
	}
	return filepath.Join(logDir, filename), nil
}
