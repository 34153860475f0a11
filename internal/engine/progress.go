package engine

// Snapshot is a cooperative progress report pushed while a run executes.
// The engine never blocks on the channel: when the caller falls behind,
// intermediate snapshots are dropped and only the stream thins out.
type Snapshot struct {
	Stage         string  `json:"stage"`
	Percent       float64 `json:"percent"`
	Message       string  `json:"message"`
	CurrentCourse string  `json:"current_course,omitempty"`
	Placed        int     `json:"placed"`
	Unscheduled   int     `json:"unscheduled"`
}

const progressBuffer = 64

type progressSink struct {
	ch chan Snapshot
}

func newProgressSink() *progressSink {
	return &progressSink{ch: make(chan Snapshot, progressBuffer)}
}

func (p *progressSink) push(snapshot Snapshot) {
	select {
	case p.ch <- snapshot:
	default:
	}
}

func (p *progressSink) close() {
	close(p.ch)
}
