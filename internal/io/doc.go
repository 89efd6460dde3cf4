// Package ioutils provides file system utilities.
//
// # Filename Sanitization
//
// Use SanitizeFileName to remove invalid characters from filenames:
//
//	safe := ioutils.SanitizeFileName("Report: Q1/Q2") // Returns "Report_ Q1_Q2"
//
// # Destinations
//
// LocalPath maps a path inside the share to a directory under the download
// root plus a file name, and EnsureDir creates the directory:
//
//	dir, name := ioutils.LocalPath(root, "/photos/2024/img.jpg")
//	err := ioutils.EnsureDir(dir)
package ioutils
