package painter

import (
	"fmt"

	"github.com/gogpu/painter/gpucore"
	"github.com/gogpu/painter/internal/resource"
	"github.com/gogpu/painter/recording"
)

// SlotState is the lifecycle state of a frame slot.
type SlotState uint8

// Slot states. A slot moves Stale -> Recording -> Submitted and, when it
// is acquired again, either stays usable (Fresh) or was invalidated
// (Stale).
const (
	SlotStale SlotState = iota
	SlotRecording
	SlotSubmitted
	SlotFresh
)

// String returns the state name.
func (s SlotState) String() string {
	switch s {
	case SlotStale:
		return "stale"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotFresh:
		return "fresh"
	default:
		return fmt.Sprintf("SlotState(%d)", s)
	}
}

// frameSlot is one in-flight frame.
type frameSlot struct {
	index  int
	state  SlotState
	target *resource.Image
	rec    *recording.Recording
	fence  gpucore.FenceID
}

// invalidate marks every slot stale and requires a re-record of each one
// before the change counts as applied.
func (r *Renderer) invalidate() {
	for _, s := range r.slots {
		s.state = SlotStale
	}
	r.framesNeedUpdate = len(r.slots)
}

// FramesNeedUpdate returns how many slots must still be re-recorded before
// the last structural change is visible in every presented frame.
func (r *Renderer) FramesNeedUpdate() int { return r.framesNeedUpdate }

// SlotStates returns the state of every frame slot.
func (r *Renderer) SlotStates() []SlotState {
	out := make([]SlotState, len(r.slots))
	for i, s := range r.slots {
		out[i] = s.state
	}
	return out
}

// Recording returns the command stream last recorded into frame slot i,
// or nil if the slot was never recorded. A stale slot keeps its old
// stream until Render re-records it; check SlotStates to tell them apart.
func (r *Renderer) Recording(i int) *recording.Recording {
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	return r.slots[i].rec
}

// Render acquires the next frame slot, waits for its previous submission,
// re-records it when stale and submits it. Device failures are fatal.
func (r *Renderer) Render() error {
	if err := r.guard(); err != nil {
		return err
	}
	s := r.slots[r.next]
	r.next = (r.next + 1) % len(r.slots)

	if s.fence != 0 {
		if err := r.dev.Wait(s.fence, r.o.fenceTimeout); err != nil {
			return r.check(fatal("wait frame", err))
		}
		if s.state == SlotSubmitted {
			s.state = SlotFresh
		}
	}

	recorded := false
	if s.state == SlotStale || s.rec == nil {
		s.state = SlotRecording
		rec, err := r.recordFrame(s)
		if err != nil {
			s.state = SlotStale
			return r.check(fatal("record frame", err))
		}
		s.rec = rec
		recorded = true
		if r.framesNeedUpdate > 0 {
			r.framesNeedUpdate--
		}
	}

	fence, err := r.dev.Submit(s.rec)
	if err != nil {
		return r.check(fatal("submit frame", err))
	}
	s.fence = fence
	s.state = SlotSubmitted
	r.last = s
	r.frame++

	slogger().Debug("painter: frame submitted",
		"frame", r.frame, "slot", s.index, "recorded", recorded, "fence", fence)
	if r.o.frameHook != nil {
		r.o.frameHook(FrameInfo{Frame: r.frame, Slot: s.index, Recorded: recorded, Fence: uint64(fence)})
	}
	return nil
}

// idle waits for all submitted work to retire before a destructive
// rebuild.
func (r *Renderer) idle(op string) error {
	if err := r.dev.WaitIdle(); err != nil {
		return r.check(fatal(op, err))
	}
	return nil
}
