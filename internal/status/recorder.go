package status

import (
	"sync"

	"github.com/Speshl/gorrc_teleop/internal/models"
)

// Recorder keeps every update in memory. Handy for tests and for polling UIs.
type Recorder struct {
	lock        sync.Mutex
	Connection  []models.ConnectionState
	Channel     []models.ChannelState
	Errors      []error
	Latencies   []models.Latency
	Tracks      []string
	Signaling   []models.SignalingStatus
	LinkSamples []models.LinkStats
}

func (r *Recorder) ConnectionStateChanged(state models.ConnectionState) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Connection = append(r.Connection, state)
}

func (r *Recorder) ChannelStateChanged(state models.ChannelState) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Channel = append(r.Channel, state)
}

func (r *Recorder) ChannelError(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Errors = append(r.Errors, err)
}

func (r *Recorder) LatencyMeasured(latency models.Latency) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Latencies = append(r.Latencies, latency)
}

func (r *Recorder) RemoteTrackReceived(kind string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Tracks = append(r.Tracks, kind)
}

func (r *Recorder) SignalingStatusChanged(status models.SignalingStatus) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.Signaling = append(r.Signaling, status)
}

func (r *Recorder) LinkStatsUpdated(stats models.LinkStats) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.LinkSamples = append(r.LinkSamples, stats)
}

func (r *Recorder) LastConnection() (models.ConnectionState, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.Connection) == 0 {
		return models.ConnectionStateNew, false
	}
	return r.Connection[len(r.Connection)-1], true
}

func (r *Recorder) LatencySnapshot() []models.Latency {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]models.Latency(nil), r.Latencies...)
}
