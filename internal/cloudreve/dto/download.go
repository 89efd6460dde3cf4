package dto

// DownloadResponse is the body of PUT /api/v3/share/download/{code}.
// Data carries the signed download URL on success.
type DownloadResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data string `json:"data"`
}
