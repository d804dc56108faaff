package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Resolution order for the optional YAML overlay file (highest priority first),
// adapted from the teacher's file-path resolution convention to this
// runtime's env-var-first configuration model:
//  1. OPENARK_CONFIG_PATH (explicit file)
//  2. ./openark.yaml (CWD-relative, most natural for standalone use)
//  3. <binary-dir>/openark.yaml (portable bundles)
//  4. no file found: overlay is all zero values, environment alone governs
func resolveOverlayPath() string {
	if path := os.Getenv("OPENARK_CONFIG_PATH"); path != "" {
		if fileExists(path) {
			return path
		}
	}

	if fileExists("openark.yaml") {
		return "openark.yaml"
	}

	binaryDir := filepath.Dir(os.Args[0])
	path := filepath.Join(binaryDir, "openark.yaml")
	if fileExists(path) {
		return path
	}

	return ""
}

func loadOverlay() (overlay, error) {
	path := resolveOverlayPath()
	if path == "" {
		return overlay{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return overlay{}, fmt.Errorf("config: read overlay file %s: %w", path, err)
	}

	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return overlay{}, fmt.Errorf("config: parse overlay file %s: %w", path, err)
	}
	return ov, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
