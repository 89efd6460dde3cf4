// Package config provides configuration management for cloudreve-downloader.
//
// This package handles:
//   - Loading and saving settings from YAML files
//   - Default configuration values
//   - Validation of user supplied values
//
// # Default Settings
//
// Use DefaultSettings() to get the defaults:
//
//	settings := config.DefaultSettings()
//	// Downloads to ./download, 10 concurrent downloads
//	// Cache in ./cache, log to download.log (10 MB, 7 days)
//	// aria2 RPC on http://localhost:6800/jsonrpc
//
// # Loading from File
//
//	settings, err := config.Load("/path/to/config.yaml")
//	if err != nil {
//	    // malformed file or invalid values
//	}
//
// Durations are written as Go duration strings:
//
//	monitor_interval: 15s
//	aria2:
//	  startup_grace: 2s
package config
