package rawhttp

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
)

// Response is written back as a single HTTP/1.1 message followed by a close.
type Response struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Text builds a plaintext response.
func Text(status int, body string) *Response {
	return &Response{Status: status, ContentType: "text/plain; charset=utf-8", Body: []byte(body)}
}

// JSON builds a response around an already-encoded JSON body.
func JSON(status int, body []byte) *Response {
	return &Response{Status: status, ContentType: "application/json", Body: body}
}

// Write serializes resp. Every response allows any origin and declares
// Connection: close; the caller closes the connection afterwards.
func (resp *Response) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	reason := http.StatusText(status)
	if reason == "" {
		reason = "Status"
	}

	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, reason)
	fmt.Fprintf(bw, "Access-Control-Allow-Origin: *\r\n")
	if resp.ContentType != "" {
		fmt.Fprintf(bw, "Content-Type: %s\r\n", resp.ContentType)
	}
	fmt.Fprintf(bw, "Content-Length: %s\r\n", strconv.Itoa(len(resp.Body)))

	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(bw, "%s: %s\r\n", k, v)
		}
	}

	fmt.Fprintf(bw, "Connection: close\r\n\r\n")
	bw.Write(resp.Body)
	return bw.Flush()
}
