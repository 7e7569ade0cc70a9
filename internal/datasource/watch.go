package datasource

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/starford/lazytree/internal/apperr"
)

// Watch streams the server's change events and calls fn with each event type
// until ctx is done or the stream ends. It returns nil when ctx is cancelled.
func (c *HTTP) Watch(ctx context.Context, fn func(eventType string)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return fmt.Errorf("datasource: %w: %w", apperr.ErrTransport, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived; only the request context bounds it.
	stream := &http.Client{Transport: c.httpClient.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("datasource: watch: %w: %w", apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return readStatusError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	var event string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event != "" {
				fn(event)
			}
			event = ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("datasource: watch: %w: %w", apperr.ErrTransport, err)
	}
	return nil
}
