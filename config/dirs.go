package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const probeName = "prod"
const probeContent = "reixi directory verification test file\n"

// ErrNoDirectory - None of the candidate directories were usable
var ErrNoDirectory = errors.New("no usable directory")

// VerifyDir - Create the directory if needed and make sure a probe file can be written (and optionally read back)
func VerifyDir(dir string, read bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("'%s' is not a directory", dir)
	}

	probe := filepath.Join(dir, probeName)
	if err := os.WriteFile(probe, []byte(probeContent), 0o644); err != nil {
		return err
	}
	if !read {
		return nil
	}
	got, err := os.ReadFile(probe)
	if err != nil {
		return err
	}
	if string(got) != probeContent {
		return errors.New("test file contents mismatch")
	}
	return nil
}

// LogDir - Tries $REIXI_LOG_DIR, $XDG_RUNTIME_DIR/reixi and ./logs in order
func LogDir(cfg Config) (string, error) {
	var candidates []string
	if cfg.LogDir != "" {
		candidates = append(candidates, cfg.LogDir)
	}
	if cfg.RuntimeDir != "" {
		candidates = append(candidates, filepath.Join(cfg.RuntimeDir, Name))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "logs"))
	}
	return firstUsable(candidates, false)
}

// DBDir - Tries $REIXI_DB_DIR, $XDG_DATA_HOME/reixi, ~/.local/share/reixi and ./db in order
func DBDir(cfg Config) (string, error) {
	var candidates []string
	if cfg.DBDir != "" {
		candidates = append(candidates, cfg.DBDir)
	}
	if cfg.DataHome != "" {
		candidates = append(candidates, filepath.Join(cfg.DataHome, Name))
	}
	if cfg.Home != "" {
		candidates = append(candidates, filepath.Join(cfg.Home, ".local", "share", Name))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "db"))
	}
	return firstUsable(candidates, true)
}

func firstUsable(candidates []string, read bool) (string, error) {
	var lastErr error = ErrNoDirectory
	for _, dir := range candidates {
		err := VerifyDir(dir, read)
		if err == nil {
			return dir, nil
		}
		log.Warn().Err(err).Str("dir", dir).Msg("directory is not usable, trying next")
		lastErr = fmt.Errorf("%w: %v", ErrNoDirectory, err)
	}
	return "", lastErr
}
