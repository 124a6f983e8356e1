// Package relay connects to upstream radio streams and relays their bytes to
// local listeners.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const (
	relayBufferSize    = 4096
	defaultContentType = "audio/mpeg"
	userAgent          = "radio-directory-web/1.0"
)

// ErrUnsupportedScheme is returned for stream URLs that are not http(s).
var ErrUnsupportedScheme = errors.New("stream URL must start with http:// or https://")

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s answered %d", e.URL, e.Code)
}

// Source is an open upstream stream.
type Source struct {
	URL         string
	ContentType string
	body        io.ReadCloser
	reader      *bufio.Reader
}

// Dial opens the upstream stream. The returned Source owns the response body.
func Dial(ctx context.Context, client *http.Client, sourceURL string) (*Source, error) {
	if !strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://") {
		return nil, ErrUnsupportedScheme
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "audio/*, application/ogg;q=0.9, */*;q=0.5")
	// Inline ICY metadata would corrupt the relayed audio.
	req.Header.Set("Icy-MetaData", "0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from source: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: sourceURL, Code: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, parseErr := mime.ParseMediaType(contentType); parseErr == nil {
		contentType = mediaType
	} else {
		contentType = defaultContentType
	}

	return &Source{
		URL:         sourceURL,
		ContentType: contentType,
		body:        resp.Body,
		reader:      bufio.NewReaderSize(resp.Body, 64*1024),
	}, nil
}

// Peek returns up to n bytes without consuming them, so a probe does not eat
// audio that listeners still need.
func (s *Source) Peek(n int) ([]byte, error) {
	data, err := s.reader.Peek(n)
	if errors.Is(err, bufio.ErrBufferFull) || (err == io.EOF && len(data) > 0) {
		return data, nil
	}
	return data, err
}

// Pump copies the stream into emit chunk by chunk until ctx is done or the
// upstream ends. io.EOF is reported as nil.
func (s *Source) Pump(ctx context.Context, emit func([]byte)) error {
	buf := make([]byte, relayBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, readErr := s.reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(chunk)
		}
		if readErr != nil {
			if readErr == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("error reading from source: %w", readErr)
		}
	}
}

// Close releases the upstream connection.
func (s *Source) Close() error {
	if s == nil || s.body == nil {
		return nil
	}
	return s.body.Close()
}

// SetListenerHeaders prepares a listener response for a live stream.
func SetListenerHeaders(w http.ResponseWriter, contentType string) {
	if contentType == "" {
		contentType = defaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// IsConnectionClosedError checks if error is result of client closing connection.
func IsConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "use of closed network connection")
}
