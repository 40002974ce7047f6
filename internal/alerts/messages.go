package alerts

import (
	"fmt"
	"time"

	"pulsemon/internal/heartbeat"
	"pulsemon/internal/models"
	"pulsemon/internal/state"
)

// ServiceEvent builds the alert for a confirmed service transition.
// Down-class alerts carry the specific failure reason; recovery alerts carry
// the current latency.
func ServiceEvent(name string, action state.Action, result models.CheckResult, now time.Time) models.AlertEvent {
	if action == state.ActionRecovered {
		return models.AlertEvent{
			Target:     name,
			Transition: models.TransitionRecovered,
			Reason:     "service recovered",
			LatencyMS:  result.LatencyMS,
			TS:         now,
		}
	}
	reason := result.Error
	if reason == "" {
		reason = string(result.Status)
	}
	return models.AlertEvent{
		Target:     name,
		Transition: models.TransitionDown,
		Reason:     reason,
		TS:         now,
	}
}

// WorkerEvent builds the alert for a confirmed controller-status transition.
// Messages are specialized per controller response code; a local transport
// failure is attributed to the network or the controller depending on
// whether internet reachability held in the same cycle.
func WorkerEvent(action state.Action, code int, internetOK bool, now time.Time) models.AlertEvent {
	event := models.AlertEvent{
		Target:     "worker",
		Transition: models.TransitionWorker,
		TS:         now,
	}
	if action == state.ActionRecovered {
		event.Transition = models.TransitionRecovered
		event.Reason = "controller communication restored"
		return event
	}
	switch code {
	case heartbeat.NoResponse:
		if internetOK {
			event.Reason = "controller unreachable despite internet"
		} else {
			event.Reason = "no internet"
		}
	case heartbeat.StatusBlindWrite:
		event.Reason = "controller accepted heartbeat but could not read prior state"
	case heartbeat.StatusRecoveryLost:
		event.Reason = "controller detected recovery but failed to persist it"
	case heartbeat.StatusWorkerError:
		event.Reason = "controller internal error, heartbeat aborted"
	default:
		event.Reason = fmt.Sprintf("controller returned unexpected status %d", code)
	}
	return event
}
