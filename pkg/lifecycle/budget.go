package lifecycle

import (
	"time"

	"github.com/cuemby/taskrun/pkg/types"
)

// BudgetWindow is the rolling window the scale-out budget tracks
// spawn attempts over.
const BudgetWindow = 10 * time.Minute

// checkBudget consults (and rolls over) the scale-out budget for
// taskID under a single lock. Returns false when a spawn attempt must
// be denied.
//
// There is no manual pause flag here: no operation in this codebase
// ever sets one, only the automatic attempt/failure-threshold cooldown
// tracked below.
func (m *Manager) checkBudget(taskID string) bool {
	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()

	now := time.Now()
	b, ok := m.budgets[taskID]
	if !ok {
		b = &types.DispatchBudget{TaskID: taskID, WindowStart: now}
		m.budgets[taskID] = b
	}

	if now.Sub(b.WindowStart) >= BudgetWindow {
		b.WindowStart = now
		b.StartAttempts = 0
		b.FailedStarts = 0
	}

	if now.Before(b.CooldownUntil) {
		return false
	}
	if b.StartAttempts >= m.settings.MaxStartAttemptsPer10Min {
		b.CooldownUntil = now.Add(time.Duration(m.settings.CooldownMinutes) * time.Minute)
		return false
	}
	if b.FailedStarts >= m.settings.MaxFailedStartsPer10Min {
		b.CooldownUntil = now.Add(time.Duration(m.settings.CooldownMinutes) * time.Minute)
		return false
	}
	return true
}

func (m *Manager) registerStartAttempt(taskID string) {
	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()
	if b, ok := m.budgets[taskID]; ok {
		b.StartAttempts++
	}
}

func (m *Manager) registerStartFailure(taskID string) {
	m.budgetMu.Lock()
	defer m.budgetMu.Unlock()
	if b, ok := m.budgets[taskID]; ok {
		b.FailedStarts++
	}
}
