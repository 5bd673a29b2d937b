package domain

// escrowTransitions maps each escrow status to the statuses it may move to.
// Refunds are reachable from held or released; disputes from any non-terminal
// state; cancelled, refunded and disputed are terminal for this core.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowPendingCapture:   {EscrowHeld, EscrowCancelled, EscrowDisputed},
	EscrowHeld:             {EscrowScheduledRelease, EscrowReleased, EscrowRefunded, EscrowCancelled, EscrowDisputed},
	EscrowScheduledRelease: {EscrowReleased, EscrowCancelled, EscrowDisputed},
	EscrowReleased:         {EscrowRefunded},
	EscrowDisputed:         {},
	EscrowCancelled:        {},
	EscrowRefunded:         {},
}

// CanTransition reports whether an escrow may move from one status to another.
func CanTransition(from, to EscrowStatus) bool {
	for _, allowed := range escrowTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether an escrow status admits no further transitions
// within this core. Released escrows can still be refunded.
func IsTerminal(status EscrowStatus) bool {
	return len(escrowTransitions[status]) == 0
}
