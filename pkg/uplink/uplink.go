// Package uplink implements the device's voice round trip: a blocking
// TCP session that uploads a finished capture as a multipart POST and
// streams the reply audio back as it arrives.
//
// The request envelope and the response header scan are written by
// hand. The multipart literals are part of the wire contract with the
// processing server, and Content-Length must be computed from those
// exact literals before the first payload byte goes out.
package uplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// ProcessPath is the fixed upload endpoint.
	ProcessPath = "/process"

	// Boundary is the literal multipart boundary token. The envelope
	// around the payload is fully determined by it, which is what
	// makes the Content-Length computable up front.
	Boundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"

	// DefaultTimeout bounds the dial, the upload flush, and each
	// response read.
	DefaultTimeout = 30 * time.Second

	// writeChunk bounds a single connection write while flushing the
	// capture payload.
	writeChunk = 4 * 1024
)

// envelopeHead is everything between the request headers and the
// payload bytes; envelopeTail closes the multipart body.
const (
	envelopeHead = "--" + Boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"audio\"; filename=\"audio.pcm\"\r\n" +
		"Content-Type: audio/pcm\r\n" +
		"\r\n"
	envelopeTail = "\r\n--" + Boundary + "--\r\n"
)

// BodyLength returns the multipart body size for a payload of n
// bytes: the head literal, the payload, and the tail literal.
func BodyLength(n int) int {
	return len(envelopeHead) + n + len(envelopeTail)
}

var (
	// ErrNoResponse means the connection closed or timed out before a
	// status line arrived.
	ErrNoResponse = errors.New("uplink: no response from server")
)

// Dialer opens the byte-oriented connection the session runs over.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// NetDialer dials plain TCP.
type NetDialer struct {
	Timeout time.Duration
}

func (d *NetDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	return nd.DialContext(ctx, "tcp", addr)
}

// Client performs the upload round trip against one server address.
type Client struct {
	dialer  Dialer
	addr    string
	path    string
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the session timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithPath overrides the upload path.
func WithPath(p string) Option {
	return func(c *Client) { c.path = p }
}

// WithDialer overrides the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger overrides the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the given host:port address.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:    addr,
		path:    ProcessPath,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = &NetDialer{Timeout: c.timeout}
	}
	return c
}

// Process uploads one finished capture and returns the open response.
// The payload is fully flushed before Process returns, so the caller
// may free the capture buffer immediately; reply audio is then read
// from the Response at network pace. The caller owns the Response and
// must Close it.
func (c *Client) Process(ctx context.Context, audio []byte) (*Response, error) {
	reqID := uuid.NewString()
	log := c.log.With("request_id", reqID, "addr", c.addr)

	conn, err := c.dialer.Dial(ctx, c.addr)
	if err != nil {
		return nil, fmt.Errorf("uplink: dial %s: %w", c.addr, err)
	}

	if err := c.upload(conn, reqID, audio); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug("upload flushed", "payload_bytes", len(audio))

	resp, err := readResponse(conn, c.timeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("response headers",
		"success", resp.Success,
		"content_length", resp.ContentLength,
		"transcription", resp.Transcription)
	return resp, nil
}

func (c *Client) upload(conn net.Conn, reqID string, audio []byte) error {
	conn.SetWriteDeadline(time.Now().Add(c.timeout))

	head := "POST " + c.path + " HTTP/1.1\r\n" +
		"Host: " + c.addr + "\r\n" +
		"Connection: close\r\n" +
		"X-Request-ID: " + reqID + "\r\n" +
		"Content-Type: multipart/form-data; boundary=" + Boundary + "\r\n" +
		"Content-Length: " + strconv.Itoa(BodyLength(len(audio))) + "\r\n" +
		"\r\n" +
		envelopeHead
	if err := writeFull(conn, []byte(head)); err != nil {
		return fmt.Errorf("uplink: write request head: %w", err)
	}
	for off := 0; off < len(audio); off += writeChunk {
		end := off + writeChunk
		if end > len(audio) {
			end = len(audio)
		}
		if err := writeFull(conn, audio[off:end]); err != nil {
			return fmt.Errorf("uplink: write payload at %d: %w", off, err)
		}
	}
	if err := writeFull(conn, []byte(envelopeTail)); err != nil {
		return fmt.Errorf("uplink: write envelope tail: %w", err)
	}
	return nil
}

func writeFull(conn net.Conn, p []byte) error {
	for len(p) > 0 {
		n, err := conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
