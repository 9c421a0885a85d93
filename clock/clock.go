package clock

import (
	"encoding/binary"
	"errors"
	"net"
	"os"
	"time"

	"github.com/christoff-linde/MonitoringESP/env"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
)

// Transport is the raw NTP packet exchange. Receive must return promptly when
// wait is zero; a late response to an abandoned request is simply the next
// packet read and is accepted, which is fine because any response carries a
// newer time than the state it replaces.
type Transport interface {
	Send(pkt []byte) error
	Receive(buf []byte, wait time.Duration) (int, error)
}

// UDPTransport exchanges NTP packets with a single server over UDP.
type UDPTransport struct {
	conn net.Conn
}

func Dial(host string) (*UDPTransport, error) {
	conn, err := net.Dial("udp", host)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn}, nil
}

func (t *UDPTransport) Send(pkt []byte) error {
	_, err := t.conn.Write(pkt)
	return err
}

func (t *UDPTransport) Receive(buf []byte, wait time.Duration) (int, error) {
	// An already-expired deadline fails the read before the poller looks at
	// the socket, so a datagram sitting in the receive buffer would never be
	// delivered. Keep a small floor so a zero-wait poll still drains it.
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, err
	}
	return t.conn.Read(buf)
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// Source estimates wall-clock UNIX time from NTP responses and device uptime.
// Resync is fire-and-forget: RequestResync sends one packet, PollResponse
// checks for an answer without blocking. All state lives here; a successful
// response is the only mutation of the time estimate.
type Source struct {
	clk       clockwork.Clock
	transport Transport
	utcOffset time.Duration

	lastKnownUnix int64
	lastSyncAt    time.Time
	lastAttemptAt time.Time
	startedAt     time.Time
}

func NewSource(clk clockwork.Clock, transport Transport, utcOffset time.Duration) *Source {
	return &Source{
		clk:       clk,
		transport: transport,
		utcOffset: utcOffset,
		startedAt: clk.Now(),
	}
}

// RequestResync fires one NTP request. It never waits for the answer; a
// request already in flight is simply superseded.
func (s *Source) RequestResync() error {
	pkt := make([]byte, env.NTPPacketLen)
	pkt[0] = 0x1B // LI=0, VN=3, mode=3 (client)
	s.lastAttemptAt = s.clk.Now()
	if err := s.transport.Send(pkt); err != nil {
		logger.Warnf("NTP request failed [%v]", err)
		return err
	}
	return nil
}

// PollResponse checks for an NTP response. wait bounds the receive; pass zero
// everywhere except initial bring-up. Returns the parsed UNIX time and true
// when a response arrived, (0, false) on the normal "not yet" outcome.
func (s *Source) PollResponse(wait time.Duration) (int64, bool) {
	buf := make([]byte, env.NTPPacketLen)
	n, err := s.transport.Receive(buf, wait)
	if err != nil {
		var nerr net.Error
		if (errors.As(err, &nerr) && nerr.Timeout()) || errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, false
		}
		logger.Warnf("NTP receive failed [%v]", err)
		return 0, false
	}
	if n < env.NTPPacketLen {
		logger.Warnf("Short NTP packet [%v bytes]", n)
		return 0, false
	}
	secs1900 := binary.BigEndian.Uint32(buf[40:44]) // transmit timestamp, seconds part
	if secs1900 == 0 {
		return 0, false
	}
	unix := int64(secs1900) - env.NTPEpochOffset + int64(s.utcOffset/time.Second)
	s.lastKnownUnix = unix
	s.lastSyncAt = s.clk.Now()
	return unix, true
}

// EstimateNow returns the current UNIX time estimate, advancing the last
// synced time by device uptime since the sync. Zero means never synced.
func (s *Source) EstimateNow() int64 {
	if s.lastKnownUnix == 0 {
		return 0
	}
	return s.lastKnownUnix + int64(s.clk.Since(s.lastSyncAt)/time.Second)
}

func (s *Source) Synced() bool {
	return s.lastKnownUnix != 0
}

// SinceLastGoodSync is the staleness input for the watchdog. Before the first
// sync it counts from source creation, so a node that never syncs still goes
// stale.
func (s *Source) SinceLastGoodSync() time.Duration {
	if s.lastKnownUnix == 0 {
		return s.clk.Since(s.startedAt)
	}
	return s.clk.Since(s.lastSyncAt)
}
