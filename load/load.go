// Package load produces sustained, cancellable download or upload traffic
// used to saturate the link while latency is measured. A generator owns
// its transfer buffer and connections exclusively; the only state it
// shares with the outside is the started/done signalling on its Session.
package load

import (
	"bytes"
	"context"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Direction selects which side of the link the generator saturates.
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

const (
	chunkSize     = 32 * 1024
	uploadBufSize = 1 << 20

	// Iteration cap so a forgotten session can't run forever.
	defaultMaxIterations = 50

	requestTimeout = 20 * time.Second
)

// DefaultDownloadURLs are rotated through by the download generator.
var DefaultDownloadURLs = []string{
	"https://speed.hetzner.de/100MB.bin",
	"https://proof.ovh.net/files/100Mb.dat",
	"https://speed.cloudflare.com/__down?bytes=104857600",
}

// DefaultUploadURLs accept arbitrary POST bodies and echo or discard them.
var DefaultUploadURLs = []string{
	"https://httpbin.org/post",
	"https://postman-echo.com/post",
}

// Generator builds saturation sessions. Zero-value fields fall back to the
// package defaults.
type Generator struct {
	DownloadURLs  []string
	UploadURLs    []string
	MaxIterations int

	// Client is used for every transfer. New binds it to a source address.
	Client *http.Client
}

// New returns a Generator whose transfers are bound to the given source
// address, forcing the traffic onto the interface under test. An empty
// source leaves the dialer unbound.
func New(source string) *Generator {
	dialer := &net.Dialer{}
	if source != "" {
		dialer.LocalAddr = &net.TCPAddr{IP: net.ParseIP(source)}
	}
	return &Generator{
		Client: &http.Client{
			Transport: &http.Transport{DialContext: dialer.DialContext},
			Timeout:   requestTimeout,
		},
	}
}

// Session is the handle for one running generator task.
type Session struct {
	direction Direction
	cancel    context.CancelFunc
	started   chan struct{}
	done      chan struct{}
	began     atomic.Bool
	once      sync.Once
}

// Start launches the transfer loop in the background and returns its
// handle immediately.
func (g *Generator) Start(ctx context.Context, dir Direction) *Session {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		direction: dir,
		cancel:    cancel,
		started:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	var eg errgroup.Group
	eg.Go(func() error {
		if dir == Upload {
			return g.uploadLoop(runCtx, s)
		}
		return g.downloadLoop(runCtx, s)
	})
	go func() {
		defer close(s.done)
		if err := eg.Wait(); err != nil && runCtx.Err() == nil {
			logrus.Debug("[ LOAD_STOP ] ", dir, " generator: ", err)
		}
	}()

	return s
}

// WaitStarted blocks until the first chunk of traffic has actually moved,
// the loop exited, or the timeout expired. Returns whether a transfer
// began, letting callers tell "never got to run" from "ran".
func (s *Session) WaitStarted(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.started:
		return true
	case <-s.done:
		return s.began.Load()
	case <-t.C:
		return s.began.Load()
	}
}

// Began reports whether at least one transfer moved any bytes.
func (s *Session) Began() bool { return s.began.Load() }

// Stop cancels the loop and waits up to wait for it to wind down. A false
// return means the loop was still draining when the budget expired; the
// cancellation itself stands either way.
func (s *Session) Stop(wait time.Duration) bool {
	s.cancel()
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

func (s *Session) markStarted() {
	s.once.Do(func() {
		s.began.Store(true)
		close(s.started)
	})
}

func (g *Generator) maxIterations() int {
	if g.MaxIterations > 0 {
		return g.MaxIterations
	}
	return defaultMaxIterations
}

func (g *Generator) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

// downloadLoop requests large files in rotation, discarding the bytes.
// Cancellation is observed between 32KiB chunks, not just between files,
// so Stop takes effect mid-transfer.
func (g *Generator) downloadLoop(ctx context.Context, s *Session) error {
	urls := g.DownloadURLs
	if len(urls) == 0 {
		urls = DefaultDownloadURLs
	}

	buf := make([]byte, chunkSize)
	for i := 0; i < g.maxIterations(); i++ {
		if ctx.Err() != nil {
			return nil
		}
		url := urls[i%len(urls)]
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := g.client().Do(req)
		if err != nil {
			logrus.Debug("[ LOAD_FETCH ] ", url, ": ", err)
			continue
		}
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				s.markStarted()
			}
			if err != nil {
				break
			}
			if ctx.Err() != nil {
				break
			}
		}
		resp.Body.Close()
	}
	return nil
}

// uploadLoop POSTs a fixed random buffer to echo-style endpoints,
// discarding responses. The request context aborts an in-flight body the
// moment the session is stopped.
func (g *Generator) uploadLoop(ctx context.Context, s *Session) error {
	urls := g.UploadURLs
	if len(urls) == 0 {
		urls = DefaultUploadURLs
	}

	payload := make([]byte, uploadBufSize)
	rand.Read(payload)

	for i := 0; i < g.maxIterations(); i++ {
		if ctx.Err() != nil {
			return nil
		}
		url := urls[i%len(urls)]
		body := &progressReader{r: bytes.NewReader(payload), onRead: s.markStarted}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := g.client().Do(req)
		if err != nil {
			logrus.Debug("[ LOAD_PUSH ] ", url, ": ", err)
			continue
		}
		drain(resp)
	}
	return nil
}

func drain(resp *http.Response) {
	buf := make([]byte, chunkSize)
	for {
		if _, err := resp.Body.Read(buf); err != nil {
			break
		}
	}
	resp.Body.Close()
}

// progressReader flips the session's started signal the moment the HTTP
// transport consumes the first body chunk.
type progressReader struct {
	r      *bytes.Reader
	onRead func()
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.onRead()
	}
	return n, err
}
