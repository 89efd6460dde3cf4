package dto

import "github.com/handiism/cloudreve-downloader/internal/model"

// Object types reported by the share listing API.
const (
	ObjectTypeDir  = "dir"
	ObjectTypeFile = "file"
)

// ListResponse is the body of GET /api/v3/share/list/{code}/{path}.
type ListResponse struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg"`
	Data ListData `json:"data"`
}

// ListData holds the objects of one directory.
type ListData struct {
	Parent  string   `json:"parent"`
	Objects []Object `json:"objects"`
}

// Object is a file or directory entry in a listing.
type Object struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Date string `json:"date"`
}

// IsDir reports whether the object is a directory.
func (o *Object) IsDir() bool {
	return o.Type == ObjectTypeDir
}

// ToFileEntry converts the object into a model.FileEntry located in dir.
// dir is the share-relative directory without leading or trailing slashes.
func (o *Object) ToFileEntry(dir string) model.FileEntry {
	p := "/" + o.Name
	if dir != "" {
		p = "/" + dir + "/" + o.Name
	}
	return model.FileEntry{Path: p, Size: o.Size}
}
