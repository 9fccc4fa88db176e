package statsd

import (
	"net"
	"strings"
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
		{"jobtrack", "record.transition", "jobtrack.record.transition"},
		{"", " kind/export ", "kind_export"},
		{"jobtrack", "foo..bar", "jobtrack.foo.bar"},
		{"jobtrack", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metricName(tt.prefix, tt.name), "%q + %q", tt.prefix, tt.name)
	}
}

func TestFormat_MergesAndSortsTags(t *testing.T) {
	t.Parallel()

	c := &Client{prefix: "jobtrack", globalTags: map[string]string{"env": "prod", "service": "worker"}}
	line := c.format("record.transition", "1", "c", map[string]string{
		"env":  " stage ",
		"":     "ignored",
		"kind": "export",
	})
	assert.Equal(t, "jobtrack.record.transition:1|c|#env:stage,kind:export,service:worker", line)
}

func TestDisabledClientIsNoop(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, c.Enabled())
	c.Count("x", 1, nil)
	require.NoError(t, c.Close())

	var nilClient *Client
	nilClient.Timing("x", time.Second, nil)
	assert.False(t, nilClient.Enabled())
}

func TestClient_WritesDatagrams(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	c, err := NewClient(Config{Enabled: true, Address: pc.LocalAddr().String(), Prefix: "jobtrack."})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.True(t, c.Enabled())

	c.Timing("record.duration", 1500*time.Millisecond, map[string]string{"kind": "export"})

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	got := string(buf[:n])
	assert.True(t, strings.HasPrefix(got, "jobtrack.record.duration:1500|ms"), got)
	assert.Contains(t, got, "|#kind:export")
}
