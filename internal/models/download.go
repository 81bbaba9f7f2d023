package models

type OutcomeStatus string

const (
	StatusSkipped    OutcomeStatus = "skipped"
	StatusDownloaded OutcomeStatus = "downloaded"
	StatusFailed     OutcomeStatus = "failed"
)

// DownloadOutcome is the result of materializing one SyncTarget. It is only
// used for logging and for building the SyncResult.
type DownloadOutcome struct {
	Status       OutcomeStatus
	RemotePath   string
	LocalPath    string
	Reason       string
	BytesWritten int64
	Err          error
	Target       SyncTarget
}

func Skipped(target SyncTarget, reason string) DownloadOutcome {
	return DownloadOutcome{
		Status:     StatusSkipped,
		RemotePath: target.RemotePath,
		LocalPath:  target.LocalPath,
		Reason:     reason,
		Target:     target,
	}
}

func Downloaded(target SyncTarget, bytesWritten int64) DownloadOutcome {
	return DownloadOutcome{
		Status:       StatusDownloaded,
		RemotePath:   target.RemotePath,
		LocalPath:    target.LocalPath,
		BytesWritten: bytesWritten,
		Target:       target,
	}
}

func Failed(target SyncTarget, err error) DownloadOutcome {
	return DownloadOutcome{
		Status:     StatusFailed,
		RemotePath: target.RemotePath,
		LocalPath:  target.LocalPath,
		Err:        err,
		Target:     target,
	}
}

type DownloadItem struct {
	RemotePath   string `json:"remote_path"`
	LocalPath    string `json:"local_path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

type SkippedItem struct {
	RemotePath string `json:"remote_path"`
	LocalPath  string `json:"local_path"`
	Reason     string `json:"reason"`
}

type FailedItem struct {
	RemotePath string `json:"remote_path"`
	LocalPath  string `json:"local_path,omitempty"`
	Error      string `json:"error"`
}

// SyncResult is the end-of-run summary printed by the pull commands.
type SyncResult struct {
	RunID            string         `json:"run_id"`
	BucketName       string         `json:"bucket_name"`
	SourcePath       string         `json:"source_path"`
	Destination      string         `json:"destination"`
	Items            []DownloadItem `json:"items"`
	Skipped          []SkippedItem  `json:"skipped"`
	Failed           []FailedItem   `json:"failed"`
	TotalFiles       int            `json:"total_files"`
	TotalSizeBytes   int64          `json:"total_size_bytes"`
	TotalSizeHuman   string         `json:"total_size_human"`
	OperationTime    string         `json:"operation_time"`
	DownloadDuration string         `json:"download_duration"`
}
