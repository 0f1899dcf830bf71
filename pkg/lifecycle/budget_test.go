package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckBudgetAllowsWithinLimits(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	require.True(t, mgr.checkBudget("task-1"))
}

func TestCheckBudgetDeniesAfterMaxStartAttempts(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.MaxStartAttemptsPer10Min = 2

	require.True(t, mgr.checkBudget("task-1"))
	mgr.registerStartAttempt("task-1")
	require.True(t, mgr.checkBudget("task-1"))
	mgr.registerStartAttempt("task-1")

	require.False(t, mgr.checkBudget("task-1"), "third attempt must be denied once the attempt cap is hit")
}

func TestCheckBudgetDeniesAfterMaxFailedStarts(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.MaxFailedStartsPer10Min = 1

	require.True(t, mgr.checkBudget("task-1"))
	mgr.registerStartFailure("task-1")

	require.False(t, mgr.checkBudget("task-1"), "budget must deny once failures reach the cap")
}

func TestCheckBudgetCooldownBlocksUntilExpiry(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.MaxStartAttemptsPer10Min = 1

	require.True(t, mgr.checkBudget("task-1"))
	mgr.registerStartAttempt("task-1")
	require.False(t, mgr.checkBudget("task-1"))

	// Still within cooldown: must remain denied even though the window
	// hasn't rolled over and attempts weren't re-incremented.
	require.False(t, mgr.checkBudget("task-1"))
}

func TestCheckBudgetIsolatedPerTask(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.MaxStartAttemptsPer10Min = 1

	require.True(t, mgr.checkBudget("task-1"))
	mgr.registerStartAttempt("task-1")
	require.False(t, mgr.checkBudget("task-1"))

	require.True(t, mgr.checkBudget("task-2"), "a different task's budget must be independent")
}

func TestCheckBudgetWindowRollover(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.MaxStartAttemptsPer10Min = 1

	require.True(t, mgr.checkBudget("task-1"))
	mgr.registerStartAttempt("task-1")
	require.False(t, mgr.checkBudget("task-1"))

	// Force the window to look expired and confirm a rollover resets counts.
	mgr.budgetMu.Lock()
	mgr.budgets["task-1"].WindowStart = mgr.budgets["task-1"].WindowStart.Add(-BudgetWindow - 1)
	mgr.budgets["task-1"].CooldownUntil = mgr.budgets["task-1"].WindowStart
	mgr.budgetMu.Unlock()

	require.True(t, mgr.checkBudget("task-1"), "expired window must roll over and clear attempt/failure counts")
}
