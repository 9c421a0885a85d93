package clock

import (
	"encoding/binary"
	"net"
	"os"
	"testing"
	"time"

	"github.com/christoff-linde/MonitoringESP/env"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type fakeTransport struct {
	responses [][]byte
	sends     int
}

func (t *fakeTransport) Send(pkt []byte) error {
	t.sends += 1
	return nil
}

func (t *fakeTransport) Receive(buf []byte, wait time.Duration) (int, error) {
	if len(t.responses) == 0 {
		return 0, os.ErrDeadlineExceeded
	}
	resp := t.responses[0]
	t.responses = t.responses[1:]
	return copy(buf, resp), nil
}

func ntpPacket(unix int64) []byte {
	pkt := make([]byte, env.NTPPacketLen)
	binary.BigEndian.PutUint32(pkt[40:44], uint32(unix+env.NTPEpochOffset))
	return pkt
}

func TestPollResponseParsesTransmitTimestamp(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	tr.responses = append(tr.responses, ntpPacket(1700000000))

	unix, ok := src.PollResponse(0)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), unix)
	assert.True(t, src.Synced())
}

func TestUTCOffsetApplied(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 2*time.Hour)

	tr.responses = append(tr.responses, ntpPacket(1700000000))

	unix, ok := src.PollResponse(0)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000+7200), unix)
}

func TestEstimateAdvancesWithUptime(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	assert.Equal(t, int64(0), src.EstimateNow(), "no estimate before the first sync")

	tr.responses = append(tr.responses, ntpPacket(1000))
	_, ok := src.PollResponse(0)
	assert.True(t, ok)

	assert.Equal(t, int64(1000), src.EstimateNow())

	clk.Advance(90 * time.Second)
	assert.Equal(t, int64(1090), src.EstimateNow())
}

func TestNoResponseIsNotAnError(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	unix, ok := src.PollResponse(0)
	assert.False(t, ok)
	assert.Equal(t, int64(0), unix)
	assert.False(t, src.Synced())
}

func TestShortPacketDiscarded(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	tr.responses = append(tr.responses, make([]byte, 20))

	_, ok := src.PollResponse(0)
	assert.False(t, ok)
	assert.False(t, src.Synced())
}

func TestZeroTransmitTimestampDiscarded(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	tr.responses = append(tr.responses, make([]byte, env.NTPPacketLen))

	_, ok := src.PollResponse(0)
	assert.False(t, ok)
}

func TestSinceLastGoodSync(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	// before any sync staleness counts from creation
	clk.Advance(time.Minute)
	assert.Equal(t, time.Minute, src.SinceLastGoodSync())

	tr.responses = append(tr.responses, ntpPacket(1000))
	_, ok := src.PollResponse(0)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), src.SinceLastGoodSync())

	clk.Advance(time.Hour)
	assert.Equal(t, time.Hour, src.SinceLastGoodSync())
}

func TestUDPTransportZeroWaitSeesQueuedResponse(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer server.Close()

	go func() {
		buf := make([]byte, env.NTPPacketLen)
		_, addr, err := server.ReadFrom(buf)
		if err != nil {
			return
		}
		_, _ = server.WriteTo(ntpPacket(1700000000), addr)
	}()

	tr, err := Dial(server.LocalAddr().String())
	assert.NoError(t, err)
	defer tr.Close()

	src := NewSource(clockwork.NewRealClock(), tr, 0)
	assert.NoError(t, src.RequestResync())

	// let the kernel queue the response before polling
	time.Sleep(200 * time.Millisecond)

	unix, ok := src.PollResponse(0)
	assert.True(t, ok, "a response already in the socket buffer must be visible to a zero-wait poll")
	assert.Equal(t, int64(1700000000), unix)
}

func TestRequestResyncSendsClientPacket(t *testing.T) {
	clk := clockwork.NewFakeClock()
	tr := &fakeTransport{}
	src := NewSource(clk, tr, 0)

	assert.NoError(t, src.RequestResync())
	assert.Equal(t, 1, tr.sends)

	// a second request while the first is outstanding is fine
	assert.NoError(t, src.RequestResync())
	assert.Equal(t, 2, tr.sends)
}
