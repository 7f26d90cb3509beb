package httpclient

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// defaultLogger is used by clients built without WithLogger.
var defaultLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// redactedHeaders are masked in cURL output unless the caller asks for
// the raw values.
var redactedHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
}

// generateCurlCommand renders req as an equivalent cURL command line.
//
//	curl -X POST 'https://api.example.com/users' \
//	  -H 'Content-Type: application/json' \
//	  -d '{"name":"John"}'
func generateCurlCommand(req *http.Request, body []byte, redact bool) string {
	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}
	parts = append(parts, fmt.Sprintf("'%s'", req.URL.String()))

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range req.Header[k] {
			if redact && redactedHeaders[k] {
				v = "***"
			}
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		escaped := strings.ReplaceAll(string(body), "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", escaped))
	}
	return strings.Join(parts, " ")
}

// logRequest logs an outgoing wire request.
func logRequest(logger zerolog.Logger, taskID string, attempt int, req *http.Request) {
	logger.Debug().
		Str("task_id", taskID).
		Int("attempt", attempt).
		Str("wire_id", WireID(req)).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("HTTP request")
}

// logResponse logs the response of a wire request.
func logResponse(logger zerolog.Logger, taskID string, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Str("task_id", taskID).
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Dur("duration_ms", duration).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}
