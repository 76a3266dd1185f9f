package latency

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/Speshl/gorrc_teleop/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent   []int64
	err    error
	onSend func(int64)
}

func (f *fakeSender) SendNumber(v int64) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	if f.onSend != nil {
		f.onSend(v)
	}
	return nil
}

type fakeConn struct {
	state models.ConnectionState
}

func (f fakeConn) ConnectionState() models.ConnectionState { return f.state }

type testClock struct {
	now int64
}

func (c *testClock) Now() int64 { return c.now }

func newTestProber(sender Sender, state models.ConnectionState) (*Prober, *testClock, *status.Recorder) {
	recorder := &status.Recorder{}
	clock := &testClock{now: 1_000}
	p := NewProber(config.ProbeConfig{Interval: time.Second, Timeout: 5 * time.Second}, sender, fakeConn{state: state}, recorder)
	p.nowMilli = clock.Now
	return p, clock, recorder
}

func TestTickSkipsWhenNotConnected(t *testing.T) {
	sender := &fakeSender{}
	p, _, _ := newTestProber(sender, models.ConnectionStateConnecting)
	assert.False(t, p.Tick())
	assert.Empty(t, sender.sent)
	assert.False(t, p.Pending())
}

func TestAtMostOneProbeInFlight(t *testing.T) {
	sender := &fakeSender{}
	p, clock, _ := newTestProber(sender, models.ConnectionStateConnected)

	require.True(t, p.Tick())
	clock.now += 1000
	assert.False(t, p.Tick())
	clock.now += 1000
	assert.False(t, p.Tick())

	assert.Equal(t, []int64{1_000}, sender.sent)
	assert.True(t, p.Pending())
}

func TestRoundTrip(t *testing.T) {
	sender := &fakeSender{}
	p, clock, recorder := newTestProber(sender, models.ConnectionStateConnected)

	require.True(t, p.Tick())
	clock.now += 37
	assert.True(t, p.HandleMessage(strconv.FormatInt(sender.sent[0], 10)))

	assert.Equal(t, []models.Latency{{Millis: 37, Known: true}}, recorder.Latencies)
	assert.False(t, p.Pending())
	assert.True(t, p.Tick(), "next probe allowed once echo matched")
}

func TestSynchronousEcho(t *testing.T) {
	sender := &fakeSender{}
	p, _, recorder := newTestProber(sender, models.ConnectionStateConnected)
	sender.onSend = func(v int64) { p.HandleMessage(strconv.FormatInt(v, 10)) }

	require.True(t, p.Tick())
	assert.Equal(t, []models.Latency{{Millis: 0, Known: true}}, recorder.Latencies)
	assert.False(t, p.Pending())
}

func TestStaleEchoIsUnknown(t *testing.T) {
	p, _, recorder := newTestProber(&fakeSender{}, models.ConnectionStateConnected)

	assert.True(t, p.HandleMessage("123456"))
	require.Len(t, recorder.Latencies, 1)
	assert.False(t, recorder.Latencies[0].Known)
	assert.Equal(t, "unknown", recorder.Latencies[0].String())
}

func TestNonNumericMessageIgnored(t *testing.T) {
	sender := &fakeSender{}
	p, _, recorder := newTestProber(sender, models.ConnectionStateConnected)
	require.True(t, p.Tick())

	assert.False(t, p.HandleMessage("0.15,0"))
	assert.False(t, p.HandleMessage("pong"))
	assert.Empty(t, recorder.Latencies)
	assert.True(t, p.Pending())
}

func TestTimedOutProbeIsReplaced(t *testing.T) {
	sender := &fakeSender{}
	p, clock, recorder := newTestProber(sender, models.ConnectionStateConnected)

	require.True(t, p.Tick())
	clock.now += 5_000
	require.True(t, p.Tick())

	assert.Equal(t, []int64{1_000, 6_000}, sender.sent)
	require.Len(t, recorder.Latencies, 1)
	assert.False(t, recorder.Latencies[0].Known)

	// the first probe's echo arrives late and must not be matched to the second
	clock.now += 3
	assert.True(t, p.HandleMessage("1000"))
	require.Len(t, recorder.Latencies, 2)
	assert.False(t, recorder.Latencies[1].Known)
	assert.True(t, p.Pending())

	clock.now += 37
	assert.True(t, p.HandleMessage("6000"))
	require.Len(t, recorder.Latencies, 3)
	assert.Equal(t, models.Latency{Millis: 40, Known: true}, recorder.Latencies[2])
	assert.False(t, p.Pending())
}

func TestMismatchedEchoKeepsProbePending(t *testing.T) {
	sender := &fakeSender{}
	p, clock, recorder := newTestProber(sender, models.ConnectionStateConnected)
	require.True(t, p.Tick())

	assert.True(t, p.HandleMessage("999"))
	assert.True(t, p.Pending())
	clock.now += 12
	assert.True(t, p.HandleMessage("1000"))

	assert.Equal(t, []models.Latency{{}, {Millis: 12, Known: true}}, recorder.Latencies)
}

func TestFailedSendClearsPending(t *testing.T) {
	sender := &fakeSender{err: models.ErrChannelNotOpen}
	p, _, _ := newTestProber(sender, models.ConnectionStateConnected)

	assert.False(t, p.Tick())
	assert.False(t, p.Pending())

	sender.err = nil
	assert.True(t, p.Tick())
}

func TestConcurrentTicksAndEchoes(t *testing.T) {
	sender := &lockedSender{}
	p := NewProber(config.ProbeConfig{Interval: time.Millisecond, Timeout: time.Hour}, sender, fakeConn{state: models.ConnectionStateConnected}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.Tick()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				p.HandleMessage("1")
			}
		}()
	}
	wg.Wait()
	assert.NotZero(t, sender.count())
}

type lockedSender struct {
	lock sync.Mutex
	n    int
}

func (l *lockedSender) SendNumber(int64) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.n++
	return nil
}

func (l *lockedSender) count() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.n
}
