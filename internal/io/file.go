// Package ioutils provides file system utilities for the cloudreve-downloader.
//
// This package contains functions for:
//   - Filename sanitization
//   - Mapping remote share paths to local destinations
//   - Directory creation
package ioutils

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	invalidChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots   = regexp.MustCompile(`\.+$`)
	repeatedSpaces = regexp.MustCompile(`\s+`)
)

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// This function ensures filenames are valid across different operating systems,
// particularly Windows which has the most restrictive naming rules.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars 0x00-0x1f) → underscore
//   - Trailing dots → removed (Windows limitation)
//   - Multiple whitespace → single space
//   - Trailing whitespace → removed
//
// Example:
//
//	SanitizeFileName("Report: Q1/Q2")       // Returns "Report_ Q1_Q2"
//	SanitizeFileName("notes...")            // Returns "notes"
//	SanitizeFileName("Name   with  spaces") // Returns "Name with spaces"
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = repeatedSpaces.ReplaceAllString(name, " ")
	return strings.TrimRight(name, " ")
}

// LocalPath maps an absolute share path such as "/docs/a.pdf" onto the
// download root.
//
// It returns the destination directory and the file name. The path is
// cleaned first, so ".." can never climb above root. Every segment is then
// sanitized; a segment left empty by sanitizing, such as "...", becomes "_".
//
// Sanitizing is lossy: "a  b.txt" and "a b.txt" map to the same name, as do
// "x." and "x". aria2 renames the second file rather than overwrite the first.
//
// Example:
//
//	dir, name := LocalPath("./download", "/docs/2024/report?.pdf")
//	// dir  = "download/docs/2024"
//	// name = "report_.pdf"
func LocalPath(root, remotePath string) (dir, name string) {
	var segments []string
	for _, seg := range strings.Split(path.Clean("/"+remotePath), "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		if seg = SanitizeFileName(seg); seg == "" {
			seg = "_"
		}
		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return filepath.Clean(root), ""
	}

	parts := append([]string{root}, segments[:len(segments)-1]...)
	return filepath.Join(parts...), segments[len(segments)-1]
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
