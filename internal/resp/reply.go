package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ServerError is an error reply from the cache backend ("-..." frame). It is
// a valid frame: the connection stays usable after one.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// IsServerError reports whether err is an error reply rather than a
// transport or protocol failure.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

var errIncomplete = errors.New("resp: incomplete frame")

// ErrProtocol marks a malformed reply. The connection is torn down when one
// is seen.
var ErrProtocol = errors.New("resp: protocol error")

const crlf = "\r\n"

// encodeCommand builds an array-of-bulk-strings request frame.
func encodeCommand(args []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "*%d%s", len(args), crlf)
	for _, arg := range args {
		fmt.Fprintf(&b, "$%d%s%s%s", len(arg), crlf, arg, crlf)
	}
	return b.Bytes()
}

// parseReply decodes a single reply frame from data. It returns the decoded
// value and the number of bytes consumed. errIncomplete means more bytes are
// needed; the caller keeps reading. Error replies come back as *ServerError
// with the frame fully consumed.
func parseReply(data []byte) (interface{}, int, error) {
	if len(data) == 0 {
		return nil, 0, errIncomplete
	}

	line, n := readLine(data)
	if n == 0 {
		return nil, 0, errIncomplete
	}

	switch data[0] {
	case '+':
		return string(line[1:]), n, nil

	case '-':
		return nil, n, &ServerError{Message: string(line[1:])}

	case ':':
		v, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad integer %q", ErrProtocol, line)
		}
		return v, n, nil

	case '$':
		length, err := strconv.Atoi(string(line[1:]))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad bulk length %q", ErrProtocol, line)
		}
		if length < 0 {
			// Null bulk: absent value, not an error.
			return nil, n, nil
		}
		end := n + length + len(crlf)
		if len(data) < end {
			return nil, 0, errIncomplete
		}
		if string(data[n+length:end]) != crlf {
			return nil, 0, fmt.Errorf("%w: bulk payload not terminated", ErrProtocol)
		}
		return string(data[n : n+length]), end, nil

	case '*':
		// Only the element count is needed by this client; no command it
		// issues yields an array body worth decoding.
		count, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad array header %q", ErrProtocol, line)
		}
		return count, n, nil

	default:
		return nil, 0, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, data[0])
	}
}

// readLine returns the first line without its terminator and the bytes
// consumed including the terminator, or n == 0 if no full line is present.
func readLine(data []byte) ([]byte, int) {
	idx := bytes.Index(data, []byte(crlf))
	if idx < 0 {
		return nil, 0
	}
	return data[:idx], idx + len(crlf)
}
