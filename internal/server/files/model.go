// Package files is the file registry: it binds accounts to their stored
// blobs, owns the coupled upload/delete path against the content store and
// keeps the two sides consistent.
package files

import "time"

// FileRecord describes one uploaded file owned by exactly one account.
// StoredName is the content store key; OriginalName is user-supplied and
// only used for display and archive entry naming.
type FileRecord struct {
	ID            string
	AccountID     string
	StoredName    string
	OriginalName  string
	Size          int64
	UploadedAt    time.Time
	DownloadCount int64
}

// AccountStats aggregates an account's files for the stats endpoint.
type AccountStats struct {
	TotalFiles     int64
	TotalBytes     int64
	TotalDownloads int64
}
