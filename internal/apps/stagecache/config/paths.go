package appconfig

import (
	"os"
	"path/filepath"
)

func ConfigBasePath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "stagecache")
	}
	return filepath.Join(homedir, ".config", "stagecache")
}

func ConfigFile() string {
	return filepath.Join(ConfigBasePath(), "config.yaml")
}

func StateDBFile() string {
	return filepath.Join(ConfigBasePath(), "state.db")
}

func logsPath() string {
	return filepath.Join(ConfigBasePath(), "logs")
}

// RunLogPath is the full log of one invocation.
func RunLogPath(runID string) string {
	return filepath.Join(logsPath(), "run-"+runID+".log")
}
