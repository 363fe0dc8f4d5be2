// Call is the set of Messages sharing a Call-ID, plus derived state
// (spec §3, §4.5). Its state machine is driven by github.com/looplab/fsm
// instead of a hand-rolled switch — the teacher's task/plugin layer uses
// small explicit state tables for its own lifecycle (internal/task) in
// the same spirit; this generalizes that pattern to the exact transition
// table spec §4.5 names.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
)

// Call states (spec §4.5). "Trying" is this implementation's pre-Calling
// state for a Call created by a message other than an initial INVITE
// (e.g. the dissector first observes an in-dialog message, or an
// out-of-dialog request); it's not named in the spec's state list but is
// needed since Append can create a Call from any message, not just
// INVITE.
const (
	StateTrying    = "Trying"
	StateCalling   = "Calling"
	StateIncoming  = "Incoming"
	StateOutgoing  = "Outgoing"
	StateInCall    = "InCall"
	StateCompleted = "Completed"
	StateCancelled = "Cancelled"
	StateRejected  = "Rejected"
	StateBusyLine  = "BusyLine"
	StateDiverted  = "Diverted"
	StateRecvBye   = "Recv-BYE"
	StateSendBye   = "Send-BYE"
)

// terminalStates is the set Append's eviction pass may reclaim.
var terminalStates = map[string]bool{
	StateCompleted: true,
	StateCancelled: true,
	StateRejected:  true,
	StateBusyLine:  true,
	StateDiverted:  true,
	StateRecvBye:   true,
	StateSendBye:   true,
}

// FSM event names, chosen after the triggering SIP method/status class.
const (
	eventInvite         = "invite"
	eventProvisionalIn  = "provisional_in"
	eventProvisionalOut = "provisional_out"
	eventAnswer         = "answer"
	eventRedirect       = "redirect"
	eventBusy           = "busy"
	eventReject         = "reject"
	eventCancel         = "cancel"
	eventByeCaller      = "bye_caller"
	eventByeCallee      = "bye_callee"
)

// Call holds every Message sharing one Call-ID and the derived
// attributes the presentation layer and filter engine read.
type Call struct {
	CallID    string
	Messages  []*Message
	FirstSeen time.Time
	LastSeen  time.Time
	AnswerAt  time.Time
	EndAt     time.Time

	// Direction records which side of the dialog this process saw
	// initiate it, set once at creation by resolveDirection. With no
	// local-network setting to compare addresses against, every call is
	// "Outgoing" — see DESIGN.md's Open Question decision on
	// Incoming/Outgoing disambiguation.
	Direction string

	SrcUser, DstUser string
	Transport        string

	// SizeBytes is the running approximate memory footprint of this
	// call's packets (spec §4.5 step 6's memory accounting).
	SizeBytes int64

	// XCalls is a Call-ID set, not direct Call references, per Design
	// Notes §9: breaks reference cycles and lets eviction stay local.
	XCalls map[string]struct{}

	machine *fsm.FSM
}

func newCall(callID string, now time.Time) *Call {
	c := &Call{
		CallID:    callID,
		FirstSeen: now,
		LastSeen:  now,
		Direction: StateOutgoing,
		XCalls:    make(map[string]struct{}),
	}
	c.machine = fsm.NewFSM(
		StateTrying,
		fsm.Events{
			{Name: eventInvite, Src: []string{StateTrying}, Dst: StateCalling},
			{Name: eventProvisionalIn, Src: []string{StateCalling, StateIncoming, StateOutgoing}, Dst: StateIncoming},
			{Name: eventProvisionalOut, Src: []string{StateCalling, StateIncoming, StateOutgoing}, Dst: StateOutgoing},
			{Name: eventAnswer, Src: []string{StateCalling, StateIncoming, StateOutgoing, StateTrying}, Dst: StateInCall},
			{Name: eventRedirect, Src: []string{StateCalling, StateIncoming, StateOutgoing, StateTrying}, Dst: StateDiverted},
			{Name: eventBusy, Src: []string{StateCalling, StateIncoming, StateOutgoing, StateTrying}, Dst: StateBusyLine},
			{Name: eventReject, Src: []string{StateCalling, StateIncoming, StateOutgoing, StateTrying}, Dst: StateRejected},
			{Name: eventCancel, Src: []string{StateCalling, StateIncoming, StateOutgoing, StateTrying}, Dst: StateCancelled},
			{Name: eventByeCaller, Src: []string{StateInCall}, Dst: StateSendBye},
			{Name: eventByeCallee, Src: []string{StateInCall}, Dst: StateRecvBye},
		},
		fsm.Callbacks{},
	)
	return c
}

// State returns the call's current state label.
func (c *Call) State() string { return c.machine.Current() }

// IsTerminal reports whether the call's state no longer accepts a normal
// in-dialog transition (spec §4.5's terminal set).
func (c *Call) IsTerminal() bool { return terminalStates[c.State()] }

// trigger fires event, ignoring fsm.InvalidEventError (a retransmission
// or out-of-order duplicate naturally doesn't match the current state)
// but returning any other error.
func (c *Call) trigger(event string, at time.Time) error {
	err := c.machine.Event(context.Background(), event)
	if err == nil {
		c.applySideEffects(event, at)
		return nil
	}
	if _, ok := err.(fsm.InvalidEventError); ok {
		return nil
	}
	if _, ok := err.(fsm.NoTransitionError); ok {
		return nil
	}
	return fmt.Errorf("storage: call %s: %w", c.CallID, err)
}

func (c *Call) applySideEffects(event string, at time.Time) {
	switch event {
	case eventAnswer:
		c.AnswerAt = at
	case eventByeCaller, eventByeCallee:
		c.EndAt = at
	}
}

// ConvDur is the conversation duration: end time minus answer time, zero
// if the call never reached InCall or never ended.
func (c *Call) ConvDur() time.Duration {
	if c.AnswerAt.IsZero() || c.EndAt.IsZero() {
		return 0
	}
	return c.EndAt.Sub(c.AnswerAt)
}

// TotalDur is the full call duration: last message minus first message.
func (c *Call) TotalDur() time.Duration {
	return c.LastSeen.Sub(c.FirstSeen)
}

// MsgCount is the number of Messages the call has accumulated.
func (c *Call) MsgCount() int { return len(c.Messages) }
