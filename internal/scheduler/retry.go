package scheduler

// RetryDecision is the retry coordinator's verdict after a stage failure.
type RetryDecision int

const (
	// Requeue sends the job back through ordinary queue ordering.
	Requeue RetryDecision = iota
	// TerminalFail leaves the job failed; only an explicit manual retry can
	// bring it back.
	TerminalFail
)

// DecideRetry applies the bounded-retry rule. Requeued jobs get no special
// placement ahead of fresh submissions.
func DecideRetry(retryCount, maxRetries int) RetryDecision {
	if retryCount < maxRetries {
		return Requeue
	}
	return TerminalFail
}
