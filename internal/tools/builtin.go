package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes bounds how much of a fetched body is returned.
const maxFetchBytes = 64 * 1024

// RegisterBuiltins adds the built-in toolset to the registry: enough to
// run the engine end-to-end without an external executor. Browser and
// device tools are expected to be registered by the host.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(echoTool())
	r.MustRegister(sleepTool())
	r.MustRegister(httpFetchTool())
}

// echoTool returns its input, useful for wiring checks and planner
// round-trip tests.
func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Returns the provided text unchanged.",
		Schema: Schema{
			Required: []string{"text"},
			Properties: map[string]Property{
				"text": {Type: "string", Description: "Text to echo back."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	}
}

// sleepTool pauses for the given number of seconds, bounded by the
// context deadline.
func sleepTool() *Tool {
	return &Tool{
		Name:        "sleep",
		Description: "Waits for the given number of seconds.",
		Schema: Schema{
			Required: []string{"seconds"},
			Properties: map[string]Property{
				"seconds": {Type: "number", Description: "How long to wait."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			secs, ok := toFloat(args["seconds"])
			if !ok || secs < 0 {
				return nil, fmt.Errorf("seconds must be a non-negative number")
			}
			select {
			case <-time.After(time.Duration(secs * float64(time.Second))):
				return fmt.Sprintf("slept %.2fs", secs), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// httpFetchTool performs a GET request and returns a truncated body.
func httpFetchTool() *Tool {
	client := &http.Client{Timeout: 30 * time.Second}
	return &Tool{
		Name:        "http_fetch",
		Description: "Fetches a URL via GET and returns the response body (truncated).",
		Schema: Schema{
			Required: []string{"url"},
			Properties: map[string]Property{
				"url": {Type: "string", Description: "Absolute http(s) URL."},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			url, _ := args["url"].(string)
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return nil, fmt.Errorf("url must be absolute http(s), got %q", url)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch %s: %w", url, err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
			if err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}

			return map[string]any{
				"status": resp.StatusCode,
				"body":   string(body),
			}, nil
		},
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
