// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package config

import (
	"io/fs"
	"log/slog"
	"os"
	"runtime"
)

// InsecurePermissions reports whether the config file at path can be read
// by its group or by other users. Windows uses ACLs and always reports false.
func InsecurePermissions(path string) bool {
	if path == "" || runtime.GOOS == "windows" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("config permission check skipped", "path", path, "error", err)
		return false
	}
	const groupOrOtherRead fs.FileMode = 0o044
	return info.Mode().Perm()&groupOrOtherRead != 0
}

// WarnInsecurePermissions logs a warning when the config file holding
// repository and provider tokens is readable by others. It never fails.
func WarnInsecurePermissions(path string) {
	if InsecurePermissions(path) {
		slog.Warn("config file is readable by other users; tokens in it are exposed",
			"path", path,
			"recommended_mode", "0600")
	}
}
