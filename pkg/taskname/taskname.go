package taskname

const (
	// Callback tasks
	CallbackReplay = "callback:replay"

	// Payout tasks
	PayoutRequested = "payout:requested"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
