package ami

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuesync/internal/apperr"
)

func TestDialLogsIn(t *testing.T) {
	f := newFakeAMI(t)
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	assert.Equal(t, "Asterisk Call Manager/7.0.3", s.Banner)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close must be idempotent")

	assert.Eventually(t, func() bool {
		seen := f.seen()
		return len(seen) == 2 && seen[0] == "Login" && seen[1] == "Logoff"
	}, time.Second, 10*time.Millisecond)
}

func TestDialRejectedCredentials(t *testing.T) {
	f := newFakeAMI(t)
	f.start()

	cfg := f.config()
	cfg.Secret = "wrong"

	s, err := Dial(context.Background(), cfg)
	assert.Nil(t, s)
	assert.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
}

func TestDialConnectionRefused(t *testing.T) {
	f := newFakeAMI(t)
	cfg := f.config()
	f.ln.Close()

	_, err := Dial(context.Background(), cfg)
	assert.Equal(t, apperr.KindConnection, apperr.KindOf(err))
}

func TestDialLoginTimeout(t *testing.T) {
	f := newFakeAMI(t)
	f.banner = "" // accept the socket but never greet
	f.start()

	cfg := f.config()
	cfg.Timeout = 150 * time.Millisecond

	start := time.Now()
	_, err := Dial(context.Background(), cfg)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDialUnexpectedBanner(t *testing.T) {
	f := newFakeAMI(t)
	f.banner = "SSH-2.0-OpenSSH_9.6\r\n"
	f.start()

	_, err := Dial(context.Background(), f.config())
	assert.Equal(t, apperr.KindProtocol, apperr.KindOf(err))
}

func TestSendMatchesActionID(t *testing.T) {
	f := newFakeAMI(t)
	f.handle("Ping", func(w io.Writer, req *Message) {
		// a stale response and an unsolicited event arrive first
		writeFrame(w, "Response", "Success", "ActionID", "stale-id", "Ping", "Pong")
		writeFrame(w, "Event", "PeerStatus", "Peer", "PJSIP/101", "PeerStatus", "Reachable")
		writeFrame(w, "Response", "Success", "ActionID", req.ActionID(), "Ping", "Pong", "Timestamp", "1700000000.000")
	})
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	defer s.Close()

	resp, err := s.Send(context.Background(), NewAction("Ping"))
	require.NoError(t, err)
	assert.Equal(t, "1700000000.000", resp.Get("Timestamp"))
}

func TestSendErrorResponseIsProtocolError(t *testing.T) {
	f := newFakeAMI(t)
	f.handle("QueueStatus", func(w io.Writer, req *Message) {
		writeFrame(w, "Response", "Error", "ActionID", req.ActionID(), "Message", "Permission denied")
	})
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(context.Background(), NewAction("QueueStatus"))
	assert.Equal(t, apperr.KindProtocol, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Permission denied")
}

func TestSendTimeoutBreaksSession(t *testing.T) {
	f := newFakeAMI(t)
	f.handle("Ping", func(w io.Writer, req *Message) {})
	f.start()

	cfg := f.config()
	cfg.Timeout = 150 * time.Millisecond
	s, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(context.Background(), NewAction("Ping"))
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))

	_, err = s.Send(context.Background(), NewAction("Ping"))
	assert.Equal(t, apperr.KindConnection, apperr.KindOf(err))
}

func TestSendHonoursContextDeadline(t *testing.T) {
	f := newFakeAMI(t)
	f.handle("Ping", func(w io.Writer, req *Message) {})
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = s.Send(ctx, NewAction("Ping"))
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSendMalformedFrame(t *testing.T) {
	f := newFakeAMI(t)
	f.handle("Ping", func(w io.Writer, req *Message) {
		io.WriteString(w, "this line has no separator\r\n\r\n")
	})
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(context.Background(), NewAction("Ping"))
	assert.Equal(t, apperr.KindProtocol, apperr.KindOf(err))
}

func TestSendAfterClose(t *testing.T) {
	f := newFakeAMI(t)
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Send(context.Background(), NewAction("Ping"))
	assert.Equal(t, apperr.KindConnection, apperr.KindOf(err))
}

func TestNilSession(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Close())

	_, err := s.Send(context.Background(), NewAction("Ping"))
	assert.Error(t, err)
}

func TestPeerClosesMidFrame(t *testing.T) {
	f := newFakeAMI(t)
	f.handle("Ping", func(w io.Writer, req *Message) {
		io.WriteString(w, "Response: Success\r\nActionID: "+req.ActionID()+"\r\n")
		w.(net.Conn).Close()
	})
	f.start()

	s, err := Dial(context.Background(), f.config())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Send(context.Background(), NewAction("Ping"))
	assert.Equal(t, apperr.KindProtocol, apperr.KindOf(err))
}
