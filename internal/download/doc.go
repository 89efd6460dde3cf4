// Package download provides the orchestration logic for fetching a
// Cloudreve share through aria2.
//
// # Manager
//
// The Manager coordinates the entire download process:
//
//  1. Parse the share URL, then make sure aria2 is running (Open)
//  2. Load the cached listing, or walk the share, sort files by size and
//     resolve a download link per file (Initialize)
//  3. Queue every resolved file into aria2 (Dispatch)
//  4. Poll aria2 for overall progress until all files complete (Monitor)
//
// StartDownloads runs steps 3 and 4 concurrently.
//
// # Basic Usage
//
//	manager := download.NewManager(settings, func(event download.ProgressEvent) {
//	    fmt.Println(event.Message)
//	})
//
//	if err := manager.Open(ctx, "https://cloud.example.com/s/AB5so"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := manager.Initialize(ctx, "https://cloud.example.com/s/AB5so"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := manager.StartDownloads(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Concurrency
//
// Dispatch shares one errgroup limited to settings.MaxConcurrentDownloads
// across all files of a run. aria2 applies its own limits to the transfers.
//
// # Progress Tracking
//
// Progress is reported via a callback function that receives ProgressEvent:
//
//	type ProgressEvent struct {
//	    Message string
//	    Level   ProgressLevel // Info, Verbose, Warning, Error, Success
//	}
//
// The callback may be invoked from several goroutines at once.
// GetProgress returns the last snapshot taken by the monitor.
//
// Failed listings, link resolutions and submissions are reported and skipped;
// nothing is retried.
package download
