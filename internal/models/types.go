package models

import "time"

type EntryKind string

const (
	KindFile      EntryKind = "FILE"
	KindDirectory EntryKind = "DIRECTORY"
	KindUnknown   EntryKind = "UNKNOWN"
)

// RemoteEntry is one item returned by a store listing. Name is relative to
// the listed path; Key is what the store needs to fetch the object.
type RemoteEntry struct {
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	Kind       EntryKind `json:"kind"`
	RawKind    string    `json:"raw_kind,omitempty"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type SyncTarget struct {
	Entry      RemoteEntry
	RemotePath string
	LocalPath  string
}

type LocalFileStat struct {
	Exists  bool
	ModTime time.Time
	Size    int64
}

type BucketInfo struct {
	BucketName     string    `json:"bucket_name"`
	Region         string    `json:"region"`
	CreationDate   time.Time `json:"creation_date"`
	ObjectCount    int64     `json:"object_count"`
	TotalSizeBytes int64     `json:"total_size_bytes"`
	TotalSizeHuman string    `json:"total_size_human"`
	LastModified   time.Time `json:"last_modified"`
	APIEndpoint    string    `json:"api_endpoint,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}
