package main

import (
	"context"
	"errors"
	"net"

	"edmanweb/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: verify EDMANWEB_API_TOKEN matches the server token hash.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly or reduce concurrent uploads, imports and preview requests.")
		case "unprocessable":
			lines = append(lines, "hint: one of the attached images could not be decoded; restrict --ext or use --mode image.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify EDMANWEB_API_URL points to an edmanweb server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase EDMANWEB_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an edmanweb server is running at EDMANWEB_API_URL.",
			"hint: start local server manually with: edmanweb srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
