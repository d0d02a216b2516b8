package main

import (
	"fmt"
	"os"
	"time"

	"edmanweb/internal/api"
	"edmanweb/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileList(files []api.FileResponse) error {
	for _, file := range files {
		if err := writePlain("%s\n", formatFileLine(file)); err != nil {
			return err
		}
	}
	return nil
}

func formatFileLine(file api.FileResponse) string {
	mediaType := file.MediaType
	if mediaType == "" {
		mediaType = "-"
	}
	return fmt.Sprintf("%s  %-24s %8d  %-5s %s  %s", file.BlobID, file.Filename, file.SizeBytes, file.Compression, mediaType, formatTime(file.CreatedAt))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
