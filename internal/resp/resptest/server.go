// Package resptest runs an in-process cache backend speaking the wire
// protocol subset the client issues. Package tests across the module use it
// instead of a real backend.
package resptest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value   string
	members map[string]struct{}
	expires time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Server is a minimal TTL-aware key-value backend. Zero value is not usable;
// construct with NewServer.
type Server struct {
	ln       net.Listener
	password string

	mu        sync.Mutex
	data      map[string]*entry
	cmds      [][]string
	intercept func(args []string) ([]byte, bool)
}

type Option func(*Server)

func WithPassword(password string) Option {
	return func(s *Server) {
		s.password = password
	}
}

func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		data: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.ln = ln

	go s.acceptLoop()

	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close() error {
	return s.ln.Close()
}

// SetIntercept installs a hook that may answer a command with a raw frame,
// to exercise malformed-reply handling. Pass nil to restore normal replies.
func (s *Server) SetIntercept(fn func(args []string) ([]byte, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// Commands returns every command received so far, oldest first.
func (s *Server) Commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

// CommandCount counts received commands with the given name.
func (s *Server) CommandCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, cmd := range s.cmds {
		if len(cmd) > 0 && strings.EqualFold(cmd[0], name) {
			count++
		}
	}
	return count
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)

	authed := s.password == ""

	for {
		args, err := readCommand(rd)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.cmds = append(s.cmds, args)
		intercept := s.intercept
		s.mu.Unlock()

		if intercept != nil {
			if raw, handled := intercept(args); handled {
				if _, err := conn.Write(raw); err != nil {
					return
				}
				continue
			}
		}

		reply := s.dispatch(args, &authed)
		if _, err := conn.Write(reply); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(args []string, authed *bool) []byte {
	if len(args) == 0 {
		return errReply("ERR empty command")
	}

	name := strings.ToUpper(args[0])

	if name == "AUTH" {
		if len(args) != 2 {
			return errReply("ERR wrong number of arguments for 'auth' command")
		}
		if args[1] != s.password {
			return errReply("ERR invalid password")
		}
		*authed = true
		return simpleReply("OK")
	}
	if !*authed {
		return errReply("NOAUTH Authentication required.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	switch name {
	case "PING":
		return simpleReply("PONG")

	case "GET":
		e := s.lookup(args[1], now)
		if e == nil || e.members != nil {
			return []byte("$-1\r\n")
		}
		return bulkReply(e.value)

	case "SETEX":
		secs, err := strconv.Atoi(args[2])
		if err != nil {
			return errReply("ERR value is not an integer or out of range")
		}
		s.data[args[1]] = &entry{
			value:   args[3],
			expires: now.Add(time.Duration(secs) * time.Second),
		}
		return simpleReply("OK")

	case "EXISTS":
		if s.lookup(args[1], now) != nil {
			return intReply(1)
		}
		return intReply(0)

	case "DEL":
		removed := 0
		for _, key := range args[1:] {
			if s.lookup(key, now) != nil {
				removed++
			}
			delete(s.data, key)
		}
		return intReply(removed)

	case "SADD":
		e := s.lookup(args[1], now)
		if e == nil {
			e = &entry{members: make(map[string]struct{})}
			s.data[args[1]] = e
		}
		added := 0
		if _, ok := e.members[args[2]]; !ok {
			e.members[args[2]] = struct{}{}
			added = 1
		}
		return intReply(added)

	case "SCARD":
		e := s.lookup(args[1], now)
		if e == nil {
			return intReply(0)
		}
		return intReply(len(e.members))

	case "SISMEMBER":
		e := s.lookup(args[1], now)
		if e == nil {
			return intReply(0)
		}
		if _, ok := e.members[args[2]]; ok {
			return intReply(1)
		}
		return intReply(0)

	case "EXPIRE":
		secs, err := strconv.Atoi(args[2])
		if err != nil {
			return errReply("ERR value is not an integer or out of range")
		}
		e := s.lookup(args[1], now)
		if e == nil {
			return intReply(0)
		}
		e.expires = now.Add(time.Duration(secs) * time.Second)
		return intReply(1)

	default:
		return errReply(fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
}

// lookup returns the live entry for key, dropping it first if expired.
func (s *Server) lookup(key string, now time.Time) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(now) {
		delete(s.data, key)
		return nil
	}
	return e
}

func readCommand(rd *bufio.Reader) ([]string, error) {
	header, err := readLine(rd)
	if err != nil {
		return nil, err
	}
	if len(header) == 0 || header[0] != '*' {
		return nil, fmt.Errorf("bad request header %q", header)
	}
	count, err := strconv.Atoi(header[1:])
	if err != nil {
		return nil, fmt.Errorf("bad array count %q", header)
	}

	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		sizeLine, err := readLine(rd)
		if err != nil {
			return nil, err
		}
		if len(sizeLine) == 0 || sizeLine[0] != '$' {
			return nil, fmt.Errorf("bad bulk header %q", sizeLine)
		}
		size, err := strconv.Atoi(sizeLine[1:])
		if err != nil {
			return nil, fmt.Errorf("bad bulk length %q", sizeLine)
		}
		payload := make([]byte, size+2)
		if _, err := io.ReadFull(rd, payload); err != nil {
			return nil, err
		}
		args = append(args, string(payload[:size]))
	}

	return args, nil
}

func readLine(rd *bufio.Reader) (string, error) {
	line, err := rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func simpleReply(s string) []byte {
	return []byte("+" + s + "\r\n")
}

func errReply(s string) []byte {
	return []byte("-" + s + "\r\n")
}

func intReply(n int) []byte {
	return []byte(":" + strconv.Itoa(n) + "\r\n")
}

func bulkReply(s string) []byte {
	return []byte("$" + strconv.Itoa(len(s)) + "\r\n" + s + "\r\n")
}
