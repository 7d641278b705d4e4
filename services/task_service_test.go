package services

import (
	"testing"

	"task-card-system/models"
)

func TestCancelPenalty_FreeAllowance(t *testing.T) {
	for prior := 0; prior < 3; prior++ {
		if got := cancelPenalty(prior, 3, 5000, 0.2); got != 0 {
			t.Errorf("prior=%d: penalty = %d, want 0", prior, got)
		}
	}
}

func TestCancelPenalty_Escalation(t *testing.T) {
	cases := []struct {
		prior  int
		reward int64
		want   int64
	}{
		{3, 5000, 1000},
		{4, 5000, 1000},
		{10, 5000, 1000},
		{3, 1250, 250},
		{3, 333, 67}, // 66.6 rounds up
		{3, 0, 0},
	}
	for _, tc := range cases {
		if got := cancelPenalty(tc.prior, 3, tc.reward, 0.2); got != tc.want {
			t.Errorf("cancelPenalty(prior=%d, reward=%d) = %d, want %d", tc.prior, tc.reward, got, tc.want)
		}
	}
}

func TestCancelPenalty_ConfigurableAllowance(t *testing.T) {
	if got := cancelPenalty(3, 5, 5000, 0.2); got != 0 {
		t.Errorf("penalty = %d, want 0 with allowance of 5", got)
	}
	if got := cancelPenalty(5, 5, 5000, 0.2); got != 1000 {
		t.Errorf("penalty = %d, want 1000 once allowance exhausted", got)
	}
}

func TestCanSetStatus(t *testing.T) {
	cases := []struct {
		from, to models.TaskStatus
		want     bool
	}{
		{models.TaskStatusActive, models.TaskStatusCompleted, true},
		{models.TaskStatusPending, models.TaskStatusCompleted, true},
		{models.TaskStatusActive, models.TaskStatusCancelled, true},
		{models.TaskStatusPending, models.TaskStatusActive, true}, // send back for rework
		{models.TaskStatusCompleted, models.TaskStatusCancelled, false},
		{models.TaskStatusCancelled, models.TaskStatusCompleted, false},
		{models.TaskStatusCompleted, models.TaskStatusActive, false},
		{models.TaskStatusActive, models.TaskStatusPending, false}, // only captains submit
	}
	for _, tc := range cases {
		if got := canSetStatus(tc.from, tc.to); got != tc.want {
			t.Errorf("canSetStatus(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestValidateWeights(t *testing.T) {
	if err := validateWeights(10, 30, 50, 10); err != nil {
		t.Errorf("valid weights rejected: %v", err)
	}
	if err := validateWeights(10, 30, 50, 9); err == nil {
		t.Error("expected error for weights summing to 99")
	}
	if err := validateWeights(110, 30, -50, 10); err == nil {
		t.Error("expected error for negative weight")
	}
	if err := validateWeights(100, 0, 0, 0); err != nil {
		t.Errorf("single-tier weights rejected: %v", err)
	}
}

func TestTaskStatusPredicates(t *testing.T) {
	if !models.TaskStatusActive.IsOpen() || !models.TaskStatusPending.IsOpen() {
		t.Error("active and pending must count as open")
	}
	if models.TaskStatusCompleted.IsOpen() || models.TaskStatusCancelled.IsOpen() {
		t.Error("terminal statuses must not count as open")
	}
	if !models.TaskStatusCompleted.IsTerminal() || !models.TaskStatusCancelled.IsTerminal() {
		t.Error("completed and cancelled must be terminal")
	}
}
