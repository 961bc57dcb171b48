package rawhttp

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReadRequest_GetRoot(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: localhost:8081\r\nUser-Agent: curl/8.0\r\n\r\n"

	req, err := ReadRequest(strings.NewReader(raw), Limits{ChunkSize: 4096, MaxBytes: 65536})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "GET" || req.Path != "/" || req.Proto != "HTTP/1.1" {
		t.Errorf("unexpected request line: %+v", req)
	}
	if req.Header.Get("host") != "localhost:8081" {
		t.Errorf("expected Host header, got %q", req.Header.Get("host"))
	}
	if len(req.Body) != 0 {
		t.Errorf("expected empty body, got %q", req.Body)
	}
}

func TestReadRequest_PostWithBody(t *testing.T) {
	body := `{"message":"hello"}`
	raw := "POST /api/chat HTTP/1.1\r\nContent-Type: application/json\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n" + body

	req, err := ReadRequest(strings.NewReader(raw), Limits{ChunkSize: 4096, MaxBytes: 65536})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/chat" {
		t.Errorf("unexpected request line: %+v", req)
	}
	if string(req.Body) != body {
		t.Errorf("expected body %q, got %q", body, req.Body)
	}
}

func TestReadRequest_BodySpansManySmallReads(t *testing.T) {
	body := strings.Repeat("x", 5000)
	raw := "POST /api/chat HTTP/1.1\r\nContent-Length: 5000\r\n\r\n" + body

	req, err := ReadRequest(iotest.OneByteReader(strings.NewReader(raw)), Limits{ChunkSize: 16, MaxBytes: 65536})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Body) != 5000 {
		t.Errorf("expected 5000-byte body, got %d", len(req.Body))
	}
}

func TestReadRequest_BodyWithoutContentLength(t *testing.T) {
	raw := "POST /api/chat HTTP/1.1\r\n\r\n{\"message\":\"hi\"}"

	req, err := ReadRequest(strings.NewReader(raw), Limits{ChunkSize: 4096, MaxBytes: 4096})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(req.Body) != `{"message":"hi"}` {
		t.Errorf("unexpected body %q", req.Body)
	}
}

func TestReadRequest_QueryStripped(t *testing.T) {
	req, err := ReadRequest(strings.NewReader("GET /?lang=en HTTP/1.1\r\n\r\n"), Limits{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Path != "/" || req.Target != "/?lang=en" {
		t.Errorf("unexpected path/target: %q %q", req.Path, req.Target)
	}
}

func TestReadRequest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		limits Limits
		want   error
	}{
		{"empty connection", "", Limits{}, io.EOF},
		{"no blank line", "POST /api/chat HTTP/1.1\r\nHost: x\r\n{\"message\":\"hi\"}", Limits{}, ErrMalformed},
		{"bad request line", "HELLO\r\n\r\n", Limits{}, ErrMalformed},
		{"not http", "GET / FTP/1.0\r\n\r\n", Limits{}, ErrMalformed},
		{"bad header", "GET / HTTP/1.1\r\nnocolon\r\n\r\n", Limits{}, ErrMalformed},
		{"bare LF splits header", "GET / HTTP/1.1\r\nX-Request-ID: abc\nSet-Cookie: pwned=1\r\n\r\n", Limits{}, ErrMalformed},
		{"bare CR in header", "GET / HTTP/1.1\r\nX-Request-ID: abc\rSet-Cookie: pwned=1\r\n\r\n", Limits{}, ErrMalformed},
		{"bare LF in request line", "GET /\nX HTTP/1.1\r\n\r\n", Limits{}, ErrMalformed},
		{"bad content length", "POST /api/chat HTTP/1.1\r\nContent-Length: ten\r\n\r\n", Limits{}, ErrMalformed},
		{"negative content length", "POST /api/chat HTTP/1.1\r\nContent-Length: -1\r\n\r\n", Limits{}, ErrMalformed},
		{"short body", "POST /api/chat HTTP/1.1\r\nContent-Length: 50\r\n\r\n{}", Limits{}, ErrMalformed},
		{"chunked", "POST /api/chat HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", Limits{}, ErrUnsupported},
		{"declared body too large", "POST /api/chat HTTP/1.1\r\nContent-Length: 100000\r\n\r\n", Limits{ChunkSize: 64, MaxBytes: 1024}, ErrTooLarge},
		{"endless head", "GET / HTTP/1.1\r\nX-Pad: " + strings.Repeat("a", 2048), Limits{ChunkSize: 64, MaxBytes: 1024}, ErrTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadRequest(strings.NewReader(tc.raw), tc.limits)
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestResponse_Write(t *testing.T) {
	var buf bytes.Buffer
	resp := JSON(400, []byte(`{"error":"Empty request body"}`))

	if err := resp.Write(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "HTTP/1.1 400 Bad Request\r\n" +
		"Access-Control-Allow-Origin: *\r\n" +
		"Content-Type: application/json\r\n" +
		"Content-Length: 30\r\n" +
		"Connection: close\r\n\r\n" +
		`{"error":"Empty request body"}`
	if buf.String() != want {
		t.Errorf("unexpected wire bytes:\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestResponse_WriteExtraHeaders(t *testing.T) {
	var buf bytes.Buffer
	resp := Text(200, "")
	resp.Header = map[string][]string{"Access-Control-Allow-Methods": {"POST, GET, OPTIONS"}}

	resp.Write(&buf)

	if !strings.Contains(buf.String(), "Access-Control-Allow-Methods: POST, GET, OPTIONS\r\n") {
		t.Errorf("extra header missing: %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "Connection: close\r\n\r\n") {
		t.Errorf("expected Connection: close terminator, got %q", buf.String())
	}
}
