package model

import (
	"fmt"
	"sort"
)

// FileEntry is a single file found while walking a share.
type FileEntry struct {
	// Path is the absolute path of the file inside the share, e.g. "/a/b.txt".
	Path string `json:"path"`

	// Size is the file size in bytes as reported by the listing API.
	Size int64 `json:"size"`
}

// LinkTable maps a FileEntry.Path to its resolved, time-limited download URL.
//
// Files whose link could not be resolved have no entry.
type LinkTable map[string]string

// CacheRecord pairs a share's file listing with its resolved links.
//
// It is what gets persisted on disk between runs so that a second run
// against the same share skips the walk and the link resolution.
type CacheRecord struct {
	Files []FileEntry `json:"files"`
	Links LinkTable   `json:"links"`
}

// SortBySize orders files ascending by size so small files are queued first.
// Files of equal size keep their relative order.
func SortBySize(files []FileEntry) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Size < files[j].Size
	})
}

// TotalSize returns the sum of all file sizes.
func TotalSize(files []FileEntry) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// Paths returns the Path of every entry, in order.
func Paths(files []FileEntry) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a byte count with a binary unit suffix.
//
//	FormatSize(1023)    // "1023.00 B"
//	FormatSize(1024)    // "1.00 KB"
//	FormatSize(1048576) // "1.00 MB"
//
// TB is the largest unit; larger values are expressed as a multiple of it.
func FormatSize(size int64) string {
	value := float64(size)
	index := 0
	for value >= 1024 && index < len(sizeUnits)-1 {
		value /= 1024
		index++
	}
	return fmt.Sprintf("%.2f %s", value, sizeUnits[index])
}
