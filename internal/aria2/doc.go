// Package aria2 drives an external aria2 daemon, which performs the actual
// file transfers.
//
// # Process Control
//
// Process abstracts the platform specific checks for a running daemon.
// Daemon implements it with pgrep/tasklist and launches aria2 with RPC
// enabled on a local port:
//
//	daemon := aria2.NewDaemon(settings.Aria2)
//	if !daemon.IsRunning(ctx) {
//	    if err := daemon.Start(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # JSON-RPC
//
// Client speaks aria2's JSON-RPC protocol over HTTP:
//
//	client := aria2.NewClient(httpClient, settings.Aria2Endpoint(), settings.Aria2.Secret)
//	gid, err := client.AddURI(ctx, []string{link}, map[string]string{"dir": dir})
//
//	downloads, err := client.Downloads(ctx) // active + waiting + stopped
package aria2
