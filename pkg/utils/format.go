package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"s3mirror/internal/models"
	"time"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// FormatBytes renders a size for log lines. Thresholds are strict, so exactly
// 1024 bytes is still "1024 bytes".
func FormatBytes(bytes int64) string {
	switch {
	case bytes > GiB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GiB)
	case bytes > MiB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MiB)
	case bytes > KiB:
		return fmt.Sprintf("%.2f kB", float64(bytes)/KiB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func PrintJSON(data interface{}) error {
	return WriteJSON(os.Stdout, data)
}

func WriteJSON(w io.Writer, data interface{}) error {
	jsonOutput, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(jsonOutput))
	return err
}

func PrintError(err error, command string) {
	errorResp := models.ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().Format(time.RFC3339),
		Command:   command,
	}
	err = PrintJSON(errorResp)
	if err != nil {
		slog.Error("Failed to print error in JSON format", "error", err)
		fmt.Println("Error: ", errorResp)
		return
	}
}

func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}
