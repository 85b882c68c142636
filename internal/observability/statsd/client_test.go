package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{prefix: "", name: " job/metric ", want: "job_metric"},
		{prefix: "jobqueue", name: "cycle..duration", want: "jobqueue.cycle.duration"},
		{prefix: "jobqueue", name: "multi  space", want: "jobqueue.multi__space"},
		{prefix: "jobqueue", name: ".", want: "jobqueue"},
		{prefix: "jobqueue", name: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MetricName(tt.prefix, tt.name), "prefix=%q name=%q", tt.prefix, tt.name)
	}
}

func TestRenderTags(t *testing.T) {
	t.Parallel()

	global := map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " jobqueue ",
	}
	local := map[string]string{
		"result": " success ",
		"":       "ignored",
		"env":    "stage",
	}

	assert.Equal(t, "|#env:stage,result:success,service:jobqueue", renderTags(global, local))
	assert.Empty(t, renderTags(nil, nil))
}

func TestClientLine(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "jobqueue", globalTags: map[string]string{"env": "test"}}
	assert.Equal(t, "jobqueue.cycle:1|c|#env:test,result:success",
		c.line("cycle", "1", "c", map[string]string{"result": "success"}))
	assert.Empty(t, c.line(" ", "1", "c", nil))
}

func TestClientWritesOverConnection(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	c := &Client{prefix: "jobqueue", conn: clientConn}
	require.True(t, c.Enabled())

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := peerConn.Read(buf)
		received <- string(buf[:n])
	}()

	c.Timing("job.duration", 1500*time.Microsecond, nil)

	select {
	case got := <-received:
		assert.Equal(t, "jobqueue.job.duration:1.5|ms", got)
	case <-time.After(time.Second):
		t.Fatal("expected metric line to be written")
	}

	require.NoError(t, c.Close())
	assert.False(t, c.Enabled())
	require.NoError(t, c.Close(), "second close is a no-op")
}

func TestNilClientIsSafe(t *testing.T) {
	t.Parallel()

	var c *Client
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
	c.Count("x", 1, nil)
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: true, Address: "   "})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statsd dial")
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	tags := map[string]string{"k": "v"}
	r.Count("a", 2, tags)
	r.Gauge("b", 1.5, nil)
	r.Timing("a", time.Second, nil)
	tags["k"] = "mutated"

	require.Len(t, r.Metrics(), 3)
	named := r.Named("a")
	require.Len(t, named, 2)
	assert.Equal(t, "v", named[0].Tags["k"])
	assert.Equal(t, "timing", named[1].Kind)
}
