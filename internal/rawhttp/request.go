// Package rawhttp frames HTTP/1.x requests and responses directly on a
// connection for the socket-based servers. It understands just enough of
// the protocol for one request per connection: a request line, headers,
// and a Content-Length body.
package rawhttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when the request line or headers cannot be parsed,
	// including a head with no blank-line terminator.
	ErrMalformed = errors.New("malformed request")

	// ErrTooLarge is returned when the head or declared body exceeds the read limit.
	ErrTooLarge = errors.New("request too large")

	// ErrUnsupported is returned for framing this package does not implement.
	ErrUnsupported = errors.New("unsupported transfer encoding")
)

var headTerminator = []byte("\r\n\r\n")

// Request is a parsed inbound request.
type Request struct {
	Method string
	Target string // as sent, including any query
	Path   string // Target without the query
	Proto  string
	Header http.Header
	Body   []byte
}

// Limits bounds how a request is read. ChunkSize is the size of each read
// from the connection; MaxBytes caps head plus body.
type Limits struct {
	ChunkSize int
	MaxBytes  int
}

// ReadRequest reads one request from r. It returns io.EOF if the peer sent
// nothing at all, so the caller can drop the connection silently.
func ReadRequest(r io.Reader, limits Limits) (*Request, error) {
	if limits.ChunkSize <= 0 {
		limits.ChunkSize = 4096
	}
	if limits.MaxBytes < limits.ChunkSize {
		limits.MaxBytes = limits.ChunkSize
	}

	data := make([]byte, 0, limits.ChunkSize)
	chunk := make([]byte, limits.ChunkSize)
	headEnd := -1

	for headEnd < 0 {
		n, err := r.Read(chunk)
		if n > 0 {
			data = append(data, chunk[:n]...)
			headEnd = bytes.Index(data, headTerminator)
		}
		if headEnd >= 0 {
			break
		}
		if len(data) >= limits.MaxBytes {
			return nil, ErrTooLarge
		}
		if err != nil {
			if len(data) == 0 {
				return nil, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: no blank line after headers", ErrMalformed)
			}
			return nil, err
		}
	}

	req, err := parseHead(data[:headEnd])
	if err != nil {
		return nil, err
	}

	bodyStart := headEnd + len(headTerminator)
	body := data[bodyStart:]

	if te := req.Header.Get("Transfer-Encoding"); te != "" && !strings.EqualFold(te, "identity") {
		return nil, ErrUnsupported
	}

	cl := req.Header.Get("Content-Length")
	if cl == "" {
		// No declared length: whatever arrived with the head is the body.
		req.Body = body
		return req, nil
	}

	length, err := strconv.Atoi(strings.TrimSpace(cl))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: bad Content-Length %q", ErrMalformed, cl)
	}
	if bodyStart+length > limits.MaxBytes {
		return nil, ErrTooLarge
	}

	if len(body) >= length {
		req.Body = body[:length]
		return req, nil
	}

	full := make([]byte, length)
	copied := copy(full, body)
	if _, err := io.ReadFull(r, full[copied:]); err != nil {
		return nil, fmt.Errorf("%w: body shorter than Content-Length", ErrMalformed)
	}
	req.Body = full
	return req, nil
}

func parseHead(head []byte) (*Request, error) {
	lines := strings.Split(string(head), "\r\n")
	for _, line := range lines {
		if strings.ContainsAny(line, "\r\n\x00") {
			return nil, fmt.Errorf("%w: stray line break in %q", ErrMalformed, line)
		}
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || !strings.HasPrefix(parts[2], "HTTP/") {
		return nil, fmt.Errorf("%w: bad request line %q", ErrMalformed, lines[0])
	}

	req := &Request{
		Method: parts[0],
		Target: parts[1],
		Path:   parts[1],
		Proto:  parts[2],
		Header: make(http.Header),
	}
	if i := strings.IndexByte(req.Target, '?'); i >= 0 {
		req.Path = req.Target[:i]
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: bad header line %q", ErrMalformed, line)
		}
		req.Header.Add(textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(key)), strings.TrimSpace(value))
	}

	return req, nil
}
