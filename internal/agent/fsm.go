package agent

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State is a hop orchestrator state.
type State string

const (
	StateAwaitingUserInput State = "AwaitingUserInput"
	StateBuildingRequest   State = "BuildingRequest"
	StateCallingModel      State = "CallingModel"
	StateExecutingTools    State = "ExecutingTools"
	StateAppendingResults  State = "AppendingResults"
	StateEmittingFinal     State = "EmittingFinal"
)

// Trigger moves the orchestrator between states.
type Trigger string

const (
	TriggerUserInput            Trigger = "UserInput"
	TriggerRequestBuilt         Trigger = "RequestBuilt"
	TriggerModelReturnedContent Trigger = "ModelReturnedContent"
	TriggerModelRequestedTools  Trigger = "ModelRequestedTools"
	TriggerToolsExecuted        Trigger = "ToolsExecuted"
	TriggerNextHop              Trigger = "NextHop"
	TriggerTerminalToolInvoked  Trigger = "TerminalToolInvoked"
	TriggerFinalEmitted         Trigger = "FinalEmitted"
	TriggerFailed               Trigger = "Failed" // turn-fatal error, back to idle
)

// newMachine builds the state machine of one conversation. Every working
// state does its job on entry and fires the next trigger; the machine runs in
// queued mode, so one Fire of TriggerUserInput drives the whole turn and
// returns once the machine is back in StateAwaitingUserInput.
func (a *Agent) newMachine(s *session) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateAwaitingUserInput)

	hopsRemaining := func(_ context.Context, _ ...any) bool { return s.turn.hops < a.limits.MaxHops }
	hopsExhausted := func(_ context.Context, _ ...any) bool { return s.turn.hops >= a.limits.MaxHops }

	fsm.Configure(StateAwaitingUserInput).
		OnEntryFrom(TriggerNextHop, func(_ context.Context, _ ...any) error {
			a.log.Warn("Max hops reached.", "conversation", s.id, "maxHops", a.limits.MaxHops)
			s.turn.err = ErrMaxHopsExceeded
			return nil
		}).
		Permit(TriggerUserInput, StateBuildingRequest)

	fsm.Configure(StateBuildingRequest).
		OnEntry(func(ctx context.Context, _ ...any) error { return a.buildRequest(ctx, s) }).
		Permit(TriggerRequestBuilt, StateCallingModel).
		Permit(TriggerFailed, StateAwaitingUserInput)

	fsm.Configure(StateCallingModel).
		OnEntry(func(ctx context.Context, _ ...any) error { return a.callModel(ctx, s) }).
		Permit(TriggerModelReturnedContent, StateEmittingFinal).
		Permit(TriggerModelRequestedTools, StateExecutingTools).
		Permit(TriggerFailed, StateAwaitingUserInput)

	fsm.Configure(StateExecutingTools).
		OnEntry(func(ctx context.Context, _ ...any) error { return a.executeTools(ctx, s) }).
		Permit(TriggerToolsExecuted, StateAppendingResults).
		Permit(TriggerFailed, StateAwaitingUserInput)

	fsm.Configure(StateAppendingResults).
		OnEntry(func(ctx context.Context, _ ...any) error { return a.appendResults(ctx, s) }).
		Permit(TriggerNextHop, StateCallingModel, hopsRemaining).
		Permit(TriggerNextHop, StateAwaitingUserInput, hopsExhausted).
		Permit(TriggerTerminalToolInvoked, StateEmittingFinal).
		Permit(TriggerFailed, StateAwaitingUserInput)

	fsm.Configure(StateEmittingFinal).
		OnEntry(func(ctx context.Context, _ ...any) error { return a.emitFinal(ctx, s) }).
		Permit(TriggerFinalEmitted, StateAwaitingUserInput).
		Permit(TriggerFailed, StateAwaitingUserInput)

	return fsm
}
