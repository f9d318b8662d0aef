package uplink

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// Response headers carrying the server's reply metadata.
const (
	headerTranscription = "X-Transcription"
	headerResponseText  = "X-Response-Text"
	headerSuccess       = "X-Success"
)

// Response is the open server reply. The metadata headers have been
// scanned; the body, if ContentLength > 0, is raw reply audio read
// incrementally with Read.
type Response struct {
	StatusCode    int
	Transcription string
	Text          string
	Success       bool
	ContentLength int64

	conn    net.Conn
	body    io.Reader
	timeout time.Duration
}

// readResponse scans the status line and header lines up to the blank
// terminator. A malformed status or header line does not fail the
// round trip; it degrades to a zero content length so nothing gets
// played from a reply that cannot be trusted.
func readResponse(conn net.Conn, timeout time.Duration) (*Response, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	br := bufio.NewReader(conn)

	status, err := readLine(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	resp := &Response{conn: conn, timeout: timeout}
	ok := parseStatus(status, resp)

	for {
		line, err := readLine(br)
		if err != nil {
			ok = false
			break
		}
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			ok = false
			break
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(name, headerTranscription):
			resp.Transcription = value
		case strings.EqualFold(name, headerResponseText):
			resp.Text = value
		case strings.EqualFold(name, headerSuccess):
			resp.Success = strings.EqualFold(value, "true")
		case strings.EqualFold(name, "Content-Length"):
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 0 {
				ok = false
			} else {
				resp.ContentLength = n
			}
		}
	}
	if !ok {
		resp.ContentLength = 0
		resp.Success = false
	}
	resp.body = io.LimitReader(br, resp.ContentLength)
	return resp, nil
}

func parseStatus(line string, resp *Response) bool {
	proto, rest, found := strings.Cut(line, " ")
	if !found || !strings.HasPrefix(proto, "HTTP/") {
		return false
	}
	codeStr, _, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return false
	}
	resp.StatusCode = code
	return code >= 200 && code < 300
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Read returns reply audio as it arrives, up to ContentLength. Each
// call re-arms the receive deadline; a stalled server surfaces as a
// timeout error rather than a hang.
func (r *Response) Read(p []byte) (int, error) {
	r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	return r.body.Read(p)
}

// Close closes the underlying connection.
func (r *Response) Close() error {
	return r.conn.Close()
}
