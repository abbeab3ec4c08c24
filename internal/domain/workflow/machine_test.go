package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateDraft, false},
		{StatePending, false},
		{StateApproved, true},
		{StateRejected, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"valid state", StateDraft, true},
		{"valid state", StateApproved, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestStateConfiguration_Permit(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	machine := builder.Build(StateDraft)

	if !machine.CanFire(TriggerSubmit) {
		t.Error("CanFire() should return true for permitted trigger")
	}

	if err := machine.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine.State() != StatePending {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StatePending)
	}
}

func TestStateConfiguration_PermitIf_GuardFails(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).
		PermitIf(TriggerWithdraw, StateDraft, func(ctx context.Context) bool {
			return false
		})

	machine := builder.Build(StatePending)

	err := machine.Fire(context.Background(), TriggerWithdraw)
	if err == nil {
		t.Fatal("Fire() should fail when guard fails")
	}

	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}

	if machine.State() != StatePending {
		t.Errorf("State should remain %v after failed Fire(), got %v", StatePending, machine.State())
	}
}

func TestStateMachine_Fire_InvalidTransition(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	machine := builder.Build(StateDraft)

	err := machine.Fire(context.Background(), TriggerApprove)
	if err == nil {
		t.Fatal("Fire() should fail for invalid transition")
	}

	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}

	if machine.State() != StateDraft {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateDraft, machine.State())
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	machine1 := builder.Build(StateDraft)
	machine2 := builder.Build(StateDraft)

	if err := machine1.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine2.State() != StateDraft {
		t.Errorf("machine2 state = %v, want %v (machines should be independent)", machine2.State(), StateDraft)
	}

	if machine1.State() != StatePending {
		t.Errorf("machine1 state = %v, want %v", machine1.State(), StatePending)
	}
}

func TestNewExpenseMachine_ApprovalPath(t *testing.T) {
	machine := NewExpenseMachine(StateDraft, nil)

	steps := []struct {
		trigger       Trigger
		expectedState State
	}{
		{TriggerSubmit, StatePending},
		{TriggerApprove, StateApproved},
	}

	for i, step := range steps {
		if err := machine.Fire(context.Background(), step.trigger); err != nil {
			t.Errorf("Step %d: Fire(%v) failed: %v", i, step.trigger, err)
		}

		if machine.State() != step.expectedState {
			t.Errorf("Step %d: State after Fire(%v) = %v, want %v", i, step.trigger, machine.State(), step.expectedState)
		}
	}

	if !machine.State().IsTerminal() {
		t.Error("Final state should be terminal")
	}

	if triggers := machine.PermittedTriggers(); len(triggers) != 0 {
		t.Errorf("Terminal state should have 0 permitted triggers, got %d", len(triggers))
	}
}

func TestNewExpenseMachine_RejectionPath(t *testing.T) {
	machine := NewExpenseMachine(StatePending, nil)

	if err := machine.Fire(context.Background(), TriggerReject); err != nil {
		t.Errorf("Fire(TriggerReject) failed: %v", err)
	}

	if machine.State() != StateRejected {
		t.Errorf("State = %v, want %v", machine.State(), StateRejected)
	}

	if !machine.State().IsTerminal() {
		t.Error("Rejected state should be terminal")
	}
}

func TestNewExpenseMachine_WithdrawGuard(t *testing.T) {
	ledgerEmpty := true
	guard := func(ctx context.Context) bool { return ledgerEmpty }

	machine := NewExpenseMachine(StatePending, guard)
	if err := machine.Fire(context.Background(), TriggerWithdraw); err != nil {
		t.Errorf("Fire(TriggerWithdraw) failed with empty ledger: %v", err)
	}
	if machine.State() != StateDraft {
		t.Errorf("State = %v, want %v", machine.State(), StateDraft)
	}

	ledgerEmpty = false
	machine = NewExpenseMachine(StatePending, guard)
	err := machine.Fire(context.Background(), TriggerWithdraw)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire(TriggerWithdraw) error = %v, want %v", err, ErrGuardFailed)
	}
	if machine.State() != StatePending {
		t.Errorf("State = %v, want %v", machine.State(), StatePending)
	}
}
