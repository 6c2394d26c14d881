package app

import (
	"sync/atomic"
	"time"
)

// readinessGate holds /readyz at 503 while eager initialisation builds the
// retriever and LLM clients, up to a grace period. Without eager init it is
// open from the start.
type readinessGate struct {
	ready atomic.Bool
	start time.Time     // immutable
	grace time.Duration // immutable
	now   func() time.Time
}

type readinessStatus struct {
	Ready          bool   `json:"ready"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds,omitempty"`
	GraceSeconds   int    `json:"grace_seconds,omitempty"`
}

func newReadinessGate(grace time.Duration, open bool) *readinessGate {
	g := &readinessGate{start: time.Now(), grace: grace, now: time.Now}
	g.ready.Store(open)
	return g
}

// IsReady reports whether warm-up finished or the grace period ran out.
func (g *readinessGate) IsReady() bool {
	return g.ready.Load() || g.now().Sub(g.start) >= g.grace
}

func (g *readinessGate) MarkReady() { g.ready.Store(true) }

func (g *readinessGate) Status() readinessStatus {
	st := readinessStatus{Ready: g.IsReady()}
	if g.ready.Load() {
		return st
	}
	st.ElapsedSeconds = int(g.now().Sub(g.start).Seconds())
	st.GraceSeconds = int(g.grace.Seconds())
	if st.Ready {
		st.Reason = "grace period elapsed, components build on first use"
	} else {
		st.Reason = "initialising retriever and language models"
	}
	return st
}
