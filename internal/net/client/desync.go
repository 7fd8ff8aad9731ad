package client

import "fmt"

// desyncAnomaly records one observation suggesting the mirror has diverged
// from authoritative state.
type desyncAnomaly struct {
	Kind string
	UID  string
}

// desyncSignal summarizes the anomaly run that armed a snapshot request.
type desyncSignal struct {
	Anomalies   uint64
	TotalFrames uint64
	Reasons     []desyncAnomaly
}

// desyncPolicy decides when accumulated anomalies warrant requesting a full
// snapshot. Owned by the read loop; no locking.
type desyncPolicy struct {
	totalFrames uint64
	anomalies   uint64
	pending     bool
	reasons     []desyncAnomaly
}

const desyncAnomalyThreshold = 3
const desyncReasonLimit = 8

func newDesyncPolicy() *desyncPolicy {
	return &desyncPolicy{reasons: make([]desyncAnomaly, 0, desyncReasonLimit)}
}

func (p *desyncPolicy) noteFrame() {
	if p == nil {
		return
	}
	if p.totalFrames == ^uint64(0) {
		p.totalFrames /= 2
		p.anomalies /= 2
	}
	p.totalFrames++
}

func (p *desyncPolicy) noteAnomaly(kind, uid string) {
	if p == nil {
		return
	}
	p.anomalies++
	if len(p.reasons) < desyncReasonLimit {
		p.reasons = append(p.reasons, desyncAnomaly{Kind: kind, UID: uid})
	}
	p.evaluate()
}

func (p *desyncPolicy) evaluate() {
	if p == nil || p.pending {
		return
	}
	if p.anomalies >= desyncAnomalyThreshold {
		p.pending = true
	}
}

// consume returns the armed signal, if any, and restarts accumulation.
func (p *desyncPolicy) consume() (desyncSignal, bool) {
	if p == nil || !p.pending {
		return desyncSignal{}, false
	}
	signal := desyncSignal{
		Anomalies:   p.anomalies,
		TotalFrames: p.totalFrames,
		Reasons:     append([]desyncAnomaly(nil), p.reasons...),
	}
	p.pending = false
	p.anomalies = 0
	p.totalFrames = 0
	if len(p.reasons) > 0 {
		p.reasons = p.reasons[:0]
	}
	return signal, true
}

// reset clears accumulated state once an authoritative snapshot lands.
func (p *desyncPolicy) reset() {
	if p == nil {
		return
	}
	p.pending = false
	p.anomalies = 0
	p.totalFrames = 0
	if len(p.reasons) > 0 {
		p.reasons = p.reasons[:0]
	}
}

func (s desyncSignal) summary() string {
	if s.Anomalies == 0 && s.TotalFrames == 0 {
		return ""
	}
	return fmt.Sprintf("anomalies=%d frames=%d reasons=%v", s.Anomalies, s.TotalFrames, s.Reasons)
}
