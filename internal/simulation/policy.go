package simulation

import (
	"time"

	"github.com/tjfontaine/relaycode/internal/core/domain"
)

const (
	// ConflictMessage is recorded on files a simulation fails.
	ConflictMessage = "Patch conflict: file content mismatch"

	// RetryFailedMessage is recorded on files a reapply fails.
	RetryFailedMessage = "Retry failed: unresolved conflict"

	// DefaultReapplySuccessRate is the probability that a reapplied file lands APPLIED.
	DefaultReapplySuccessRate = 0.7
)

// window is a half-open duration range [min, max).
type window struct {
	min, max time.Duration
}

var reapplyWindow = window{800 * time.Millisecond, 1200 * time.Millisecond}

// durationWindow returns the total run time band for a scenario.
func durationWindow(s domain.Scenario) window {
	switch s {
	case domain.ScenarioFastSuccess:
		return window{500 * time.Millisecond, 1000 * time.Millisecond}
	case domain.ScenarioLongRunning:
		return window{8 * time.Second, 12 * time.Second}
	default:
		return window{2 * time.Second, 6 * time.Second}
	}
}

// fileDelay spreads half of the run across the files; the other half is
// spent on the gaps between outcomes and the final pause.
func fileDelay(total time.Duration, files int) time.Duration {
	if files == 0 {
		return 0
	}
	return total / time.Duration(2*files)
}

// fileOutcome decides the apply status of the file at position idx.
func fileOutcome(s domain.Scenario, idx int) (domain.FileApplyStatus, *string) {
	fail := false
	switch s {
	case domain.ScenarioSimulatedFailure:
		fail = true
	case domain.ScenarioPartialFailure:
		fail = idx%3 == 2
	}
	if !fail {
		return domain.FileApplied, nil
	}
	msg := ConflictMessage
	return domain.FileFailed, &msg
}

// terminalStatus aggregates the run's own file outcomes into the final
// transaction status.
func terminalStatus(s domain.Scenario, applied, failed int) domain.TransactionStatus {
	switch s {
	case domain.ScenarioSimulatedFailure:
		return domain.TransactionFailed
	case domain.ScenarioPartialFailure:
		switch {
		case failed == 0:
			return domain.TransactionApplied
		case applied == 0:
			return domain.TransactionFailed
		default:
			return domain.TransactionPartiallyApplied
		}
	default:
		return domain.TransactionApplied
	}
}
