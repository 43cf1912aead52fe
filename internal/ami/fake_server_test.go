package ami

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"queuesync/internal/config"
)

// fakeAMI is a scripted Asterisk manager listening on loopback
type fakeAMI struct {
	t        *testing.T
	ln       net.Listener
	banner   string
	handlers map[string]func(w io.Writer, req *Message)

	mu      sync.Mutex
	actions []string
}

func newFakeAMI(t *testing.T) *fakeAMI {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeAMI{
		t:        t,
		ln:       ln,
		banner:   "Asterisk Call Manager/7.0.3\r\n",
		handlers: make(map[string]func(w io.Writer, req *Message)),
	}
	f.handle("Login", func(w io.Writer, req *Message) {
		if req.Get("Username") == "admin" && req.Get("Secret") == "amp111" {
			writeFrame(w, "Response", "Success", "ActionID", req.ActionID(), "Message", "Authentication accepted")
			writeFrame(w, "Event", "FullyBooted", "Privilege", "system,all", "Status", "Fully Booted")
			return
		}
		writeFrame(w, "Response", "Error", "ActionID", req.ActionID(), "Message", "Authentication failed")
	})
	f.handle("Logoff", func(w io.Writer, req *Message) {
		writeFrame(w, "Response", "Goodbye", "ActionID", req.ActionID(), "Message", "Thanks for all the fish.")
	})

	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeAMI) handle(action string, h func(w io.Writer, req *Message)) {
	f.handlers[action] = h
}

func (f *fakeAMI) start() {
	go func() {
		for {
			conn, err := f.ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
}

func (f *fakeAMI) serve(conn net.Conn) {
	defer conn.Close()
	if f.banner != "" {
		io.WriteString(conn, f.banner)
	}
	r := bufio.NewReader(conn)
	for {
		req, err := readMessage(r)
		if err != nil {
			return
		}
		name := req.Get("Action")
		f.mu.Lock()
		f.actions = append(f.actions, name)
		f.mu.Unlock()

		if h, ok := f.handlers[name]; ok {
			h(conn, req)
		}
		if name == "Logoff" {
			return
		}
	}
}

func (f *fakeAMI) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func (f *fakeAMI) config() config.AMIConfig {
	addr := f.ln.Addr().(*net.TCPAddr)
	return config.AMIConfig{
		Host:           "127.0.0.1",
		Port:           addr.Port,
		Username:       "admin",
		Secret:         "amp111",
		Timeout:        2 * time.Second,
		ConnectTimeout: time.Second,
	}
}

func writeFrame(w io.Writer, kv ...string) {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, "%s: %s\r\n", kv[i], kv[i+1])
	}
	b.WriteString("\r\n")
	io.WriteString(w, b.String())
}
