// Package server is the raw-socket transport: a TCP accept loop that frames
// each connection with rawhttp, answers exactly one request, and closes.
package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"chatproxy/internal/rawhttp"
	"chatproxy/internal/services"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server: closed")

// RequestObserver records one finished connection.
type RequestObserver interface {
	ObserveRequest(route string, status int, elapsed time.Duration)
}

type Options struct {
	ReadBufferBytes int
	MaxRequestBytes int
	ConnTimeout     time.Duration
}

type Server struct {
	opts       Options
	dispatcher *Dispatcher
	observer   RequestObserver

	mu       sync.Mutex
	listener net.Listener
	closing  atomic.Bool
	conns    sync.WaitGroup
}

func New(opts Options, dispatcher *Dispatcher, observer RequestObserver) *Server {
	if opts.ReadBufferBytes <= 0 {
		opts.ReadBufferBytes = 4096
	}
	return &Server{opts: opts, dispatcher: dispatcher, observer: observer}
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. Each connection runs in its own goroutine
// and shares nothing with the others.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return err
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.serveConn(conn)
		}()
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting and waits for in-flight connections or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	start := time.Now()
	ctx := context.Background()
	if s.opts.ConnTimeout > 0 {
		conn.SetDeadline(start.Add(s.opts.ConnTimeout))
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ConnTimeout)
		defer cancel()
	}

	req, err := rawhttp.ReadRequest(conn, rawhttp.Limits{
		ChunkSize: s.opts.ReadBufferBytes,
		MaxBytes:  s.opts.MaxRequestBytes,
	})

	var resp *rawhttp.Response
	drain := err != nil
	route := RouteMalformed
	method, path := "-", "-"

	switch {
	case err == nil:
		method, path = req.Method, req.Path
		resp, route = s.dispatcher.Dispatch(ctx, req)
	case errors.Is(err, io.EOF):
		return
	case errors.Is(err, rawhttp.ErrTooLarge):
		resp = rawhttp.JSON(http.StatusRequestEntityTooLarge, services.ErrorBody("REQUEST_TOO_LARGE", "request too large", ""))
	case errors.Is(err, rawhttp.ErrUnsupported):
		resp = rawhttp.JSON(http.StatusNotImplemented, services.ErrorBody("UNSUPPORTED", "chunked bodies are not supported", ""))
	case errors.Is(err, rawhttp.ErrMalformed):
		log.Printf("%s: %v", conn.RemoteAddr(), err)
		resp = rawhttp.JSON(http.StatusBadRequest, services.ErrorBody("MALFORMED_REQUEST", "malformed request", ""))
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			resp = rawhttp.Text(http.StatusRequestTimeout, "Request Timeout")
		} else {
			log.Printf("%s: read failed: %v", conn.RemoteAddr(), err)
			return
		}
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := resp.Write(conn); err != nil {
		log.Printf("%s: write failed: %v", conn.RemoteAddr(), err)
	}

	if drain {
		lingerClose(conn)
	}

	elapsed := time.Since(start)
	log.Printf("%s %s %s -> %d in %s", conn.RemoteAddr(), method, path, resp.Status, elapsed)
	if s.observer != nil {
		s.observer.ObserveRequest(route, resp.Status, elapsed)
	}
}

// lingerClose half-closes conn and discards what the peer is still sending,
// so an early error response is not lost to a connection reset.
func lingerClose(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tcp.CloseWrite()
	tcp.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	io.Copy(io.Discard, io.LimitReader(tcp, 1<<20))
}
