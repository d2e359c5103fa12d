package config

import (
	"os"
	"path/filepath"
	"strings"
)

// baseDir anchors relative runtime paths: the directory of the resolved executable,
// or the working directory when that is unknown.
func baseDir() string {
	if exe, err := os.Executable(); err == nil && exe != "" {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func resolvePath(raw, fallback string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		p = fallback
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir(), p)
}
