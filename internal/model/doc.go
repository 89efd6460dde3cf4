// Package model defines the core data structures shared by the
// cloudreve-downloader packages.
//
// # Share Reference
//
// ShareReference identifies a shared folder and is parsed from a share link:
//
//	share, err := model.ParseShareURL("https://cloud.example.com/s/AB5so")
//	if errors.Is(err, model.ErrInvalidShareURL) {
//	    // not a share link
//	}
//
// # Files and Links
//
// FileEntry describes one file of the share (absolute path and size).
// LinkTable maps a file path to its signed download URL. CacheRecord pairs
// both and is what the disk cache persists.
//
// # Sizes
//
// FormatSize renders byte counts for log lines:
//
//	model.FormatSize(1536) // "1.50 KB"
package model
