package transport

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lsp-tester/src/internal/constants"
)

const contentLengthHeader = "Content-Length:"

// ErrMissingContentLength is returned by ReadFrame for a header block with no usable Content-Length
var ErrMissingContentLength = stderrors.New("header block has no valid Content-Length")

// WriteFrame writes one LSP frame. Header and body go out in a single Write call.
func WriteFrame(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFrame reads exactly one frame body. io.EOF is returned only when the stream
// ends on a frame boundary; a stream cut inside a frame yields io.ErrUnexpectedEOF.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	sawHeader := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && (sawHeader || line != "") {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		sawHeader = true

		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		// Content-Type and any other header are ignored
		if strings.HasPrefix(line, contentLengthHeader) {
			lengthStr := strings.TrimSpace(strings.TrimPrefix(line, contentLengthHeader))
			length, err := strconv.Atoi(lengthStr)
			if err != nil || length < 0 {
				contentLength = -1
				continue
			}
			contentLength = length
		}
	}

	if contentLength < 0 {
		return nil, ErrMissingContentLength
	}
	if contentLength > constants.MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", contentLength, constants.MaxFrameSize)
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
