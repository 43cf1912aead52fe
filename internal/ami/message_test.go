package ami

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionEncode(t *testing.T) {
	frame, err := NewAction("Login", "Username", "admin", "Secret", "amp111").encode("abc-123")
	require.NoError(t, err)
	assert.Equal(t, "Action: Login\r\nActionID: abc-123\r\nUsername: admin\r\nSecret: amp111\r\n\r\n", frame)
}

func TestActionEncodeRejectsLineBreaks(t *testing.T) {
	_, err := NewAction("Login", "Username", "admin\r\nAction: Originate").encode("x")
	assert.Error(t, err)

	_, err = NewAction("Bad:Name").encode("x")
	assert.Error(t, err)
}

func TestActionEncodeRejectsInvalidNames(t *testing.T) {
	for _, name := range []string{"", "Queue Status", "Queue\tStatus", "QueueStatus\r\nAction: Originate", "Logoff\n"} {
		_, err := NewAction(name).encode("x")
		assert.Error(t, err, "name %q", name)
	}

	_, err := NewAction("QueueStatus").encode("x")
	assert.NoError(t, err)
}

func TestReadMessage(t *testing.T) {
	raw := "\r\nEvent: QueueParams\r\nQueue: 601\r\nStrategy: ringall\r\nQueue: dup\r\nEmpty:\r\nURL: http://x:80/y\r\n\r\nResponse: Success\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(raw))

	msg, err := readMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "QueueParams", msg.Type())
	assert.Equal(t, "601", msg.Get("Queue"))
	assert.Equal(t, "", msg.Get("Empty"))
	assert.Equal(t, "http://x:80/y", msg.Get("URL"))
	assert.Equal(t, []string{"Event", "Queue", "Strategy", "Empty", "URL"}, msg.Keys)
	assert.False(t, msg.IsResponse())

	msg, err = readMessage(r)
	require.NoError(t, err)
	assert.True(t, msg.IsResponse())

	_, err = readMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageErrors(t *testing.T) {
	_, err := readMessage(bufio.NewReader(strings.NewReader("Response: Success\r\nActionID: 1")))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	_, err = readMessage(bufio.NewReader(strings.NewReader("garbage\r\n\r\n")))
	assert.ErrorIs(t, err, errMalformed)

	_, err = readMessage(bufio.NewReader(strings.NewReader(": value\r\n\r\n")))
	assert.ErrorIs(t, err, errMalformed)
}
