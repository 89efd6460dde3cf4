// Package cloudreve implements the parts of the Cloudreve v3 share API
// needed to download a shared folder.
//
// The package handles two steps:
//
//  1. Walking the share to discover every file and its size
//  2. Resolving a signed, time-limited download URL for each file
//
// # Endpoints
//
//	GET {base}/api/v3/share/list/{code}%2F{path}
//	    -> {"code":0,"msg":"","data":{"objects":[{"name","type","size"}]}}
//	PUT {base}/api/v3/share/download/{code}?path={path}
//	    -> {"code":0,"msg":"","data":"https://..."}
//
// A non-zero "code" is reported as *APIError.
//
// # Usage
//
//	client := cloudreve.NewClient(httpClient, share)
//	client.OnError = func(err error) { logger.Error(err) }
//
//	files := client.Walk(ctx)
//	model.SortBySize(files)
//	links := client.Resolve(ctx, model.Paths(files))
package cloudreve
