package uplink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

// pipeDialer hands Process one side of a net.Pipe; the test drives
// the other side as the server.
type pipeDialer struct {
	conn net.Conn
}

func (d *pipeDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return d.conn, nil
}

type capturedRequest struct {
	method  string
	path    string
	headers map[string]string
	body    []byte
}

// serve reads one full request off conn, then writes reply and closes.
// The captured request is delivered on the returned channel.
func serve(t *testing.T, conn net.Conn, reply string) <-chan capturedRequest {
	t.Helper()
	ch := make(chan capturedRequest, 1)
	go func() {
		defer conn.Close()
		br := bufio.NewReader(conn)
		line, err := br.ReadString('\n')
		if err != nil {
			t.Errorf("server: read request line: %v", err)
			return
		}
		fields := strings.Fields(line)
		req := capturedRequest{headers: map[string]string{}}
		if len(fields) >= 2 {
			req.method, req.path = fields[0], fields[1]
		}
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				t.Errorf("server: read header: %v", err)
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				break
			}
			name, value, _ := strings.Cut(line, ":")
			req.headers[name] = strings.TrimSpace(value)
		}
		n, err := strconv.Atoi(req.headers["Content-Length"])
		if err != nil {
			t.Errorf("server: bad Content-Length %q", req.headers["Content-Length"])
			return
		}
		req.body = make([]byte, n)
		if _, err := io.ReadFull(br, req.body); err != nil {
			t.Errorf("server: read body: %v", err)
			return
		}
		ch <- req
		if _, err := io.WriteString(conn, reply); err != nil {
			t.Errorf("server: write reply: %v", err)
		}
	}()
	return ch
}

func newTestClient(conn net.Conn) *Client {
	return NewClient("device-test:5000",
		WithDialer(&pipeDialer{conn: conn}),
		WithTimeout(2*time.Second))
}

func TestEnvelopeContentLength(t *testing.T) {
	client, server := net.Pipe()
	audio := bytes.Repeat([]byte{0xAB}, 4096)
	reqs := serve(t, server, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")

	resp, err := newTestClient(client).Process(context.Background(), audio)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	defer resp.Close()

	req := <-reqs
	if req.method != "POST" || req.path != ProcessPath {
		t.Fatalf("request = %s %s, want POST %s", req.method, req.path, ProcessPath)
	}
	wantLen := len(envelopeHead) + len(audio) + len(envelopeTail)
	if got := BodyLength(len(audio)); got != wantLen {
		t.Fatalf("BodyLength = %d, want %d", got, wantLen)
	}
	if got := req.headers["Content-Length"]; got != strconv.Itoa(wantLen) {
		t.Fatalf("Content-Length header = %s, want %d", got, wantLen)
	}
	if len(req.body) != wantLen {
		t.Fatalf("body size = %d, want %d", len(req.body), wantLen)
	}
	if !bytes.HasPrefix(req.body, []byte("--"+Boundary+"\r\n")) {
		t.Fatal("body does not open with the boundary literal")
	}
	if !bytes.HasSuffix(req.body, []byte("\r\n--"+Boundary+"--\r\n")) {
		t.Fatal("body does not end with the closing boundary")
	}
	payload := req.body[len(envelopeHead) : len(req.body)-len(envelopeTail)]
	if !bytes.Equal(payload, audio) {
		t.Fatal("payload bytes differ from capture")
	}
	if req.headers["X-Request-ID"] == "" {
		t.Fatal("missing X-Request-ID")
	}
	if ct := req.headers["Content-Type"]; ct != "multipart/form-data; boundary="+Boundary {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestProcessRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	body := bytes.Repeat([]byte{0x01, 0x02}, 512)
	reply := "HTTP/1.1 200 OK\r\n" +
		"X-Transcription: hello robot\r\n" +
		"X-Response-Text: hi there\r\n" +
		"X-Success: true\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"\r\n" + string(body)
	serve(t, server, reply)

	resp, err := newTestClient(client).Process(context.Background(), make([]byte, 1024))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	defer resp.Close()

	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.Transcription != "hello robot" {
		t.Errorf("Transcription = %q", resp.Transcription)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if resp.ContentLength != int64(len(body)) {
		t.Errorf("ContentLength = %d, want %d", resp.ContentLength, len(body))
	}
	got, err := io.ReadAll(resp)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body = %d bytes, want %d identical bytes", len(got), len(body))
	}
}

func TestMalformedHeadersPlayNothing(t *testing.T) {
	client, server := net.Pipe()
	reply := "HTTP/1.1 200 OK\r\n" +
		"X-Success: true\r\n" +
		"this line has no separator\r\n" +
		"Content-Length: 4096\r\n" +
		"\r\n"
	serve(t, server, reply)

	resp, err := newTestClient(client).Process(context.Background(), make([]byte, 1024))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	defer resp.Close()

	if resp.ContentLength != 0 {
		t.Errorf("ContentLength = %d, want 0 for malformed headers", resp.ContentLength)
	}
	if resp.Success {
		t.Error("Success = true, want false for malformed headers")
	}
	if _, err := resp.Read(make([]byte, 16)); err != io.EOF {
		t.Errorf("Read = %v, want immediate EOF", err)
	}
}

func TestBadContentLengthPlaysNothing(t *testing.T) {
	client, server := net.Pipe()
	reply := "HTTP/1.1 200 OK\r\n" +
		"Content-Length: not-a-number\r\n" +
		"\r\n"
	serve(t, server, reply)

	resp, err := newTestClient(client).Process(context.Background(), make([]byte, 1024))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	defer resp.Close()
	if resp.ContentLength != 0 {
		t.Errorf("ContentLength = %d, want 0", resp.ContentLength)
	}
}

func TestErrorStatusPlaysNothing(t *testing.T) {
	client, server := net.Pipe()
	reply := "HTTP/1.1 500 Internal Server Error\r\n" +
		"Content-Length: 2048\r\n" +
		"\r\n"
	serve(t, server, reply)

	resp, err := newTestClient(client).Process(context.Background(), make([]byte, 1024))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	defer resp.Close()
	if resp.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
	}
	if resp.ContentLength != 0 {
		t.Errorf("ContentLength = %d, want 0 on error status", resp.ContentLength)
	}
}

func TestNoResponse(t *testing.T) {
	client, server := net.Pipe()
	// Swallow the request, then hang up without a status line.
	serve(t, server, "")

	_, err := newTestClient(client).Process(context.Background(), make([]byte, 1024))
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Process err = %v, want ErrNoResponse", err)
	}
}

func TestDialFailure(t *testing.T) {
	dialErr := errors.New("network unreachable")
	c := NewClient("device-test:5000", WithDialer(failDialer{dialErr}))
	if _, err := c.Process(context.Background(), make([]byte, 16)); !errors.Is(err, dialErr) {
		t.Fatalf("Process err = %v, want dial failure", err)
	}
}

type failDialer struct{ err error }

func (d failDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return nil, d.err
}
