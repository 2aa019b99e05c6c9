package mq

// Topic exchanges shared by every publisher and consumer.
const (
	ExchangeEvents    = "events"
	ExchangeEventsDLQ = "events.dlq"
)

// Routing keys on the events exchange.
const (
	RoutingIntentionCompleted     = "intention.completed"
	RoutingNotificationDispatched = "notification.dispatched"
	RoutingPushRequested          = "push.requested"
)

// IntentionCompletedPayload is written to the outbox when a completion is first recorded.
type IntentionCompletedPayload struct {
	TaskID        string `json:"task_id"`
	UserID        string `json:"user_id"`
	CompletedDate string `json:"completed_date"` // YYYY-MM-DD
	TraceID       string `json:"trace_id,omitempty"`
}

// NotificationDispatchedPayload summarises one reminder check run.
type NotificationDispatchedPayload struct {
	Check         string `json:"check"`
	RunAt         string `json:"run_at"` // RFC 3339
	Checked       int    `json:"checked"`
	UsersNotified int    `json:"users_notified"`
	Sent          int    `json:"sent"`
	Failed        int    `json:"failed"`
	Removed       int    `json:"removed"`
	TraceID       string `json:"trace_id,omitempty"`
}

// PushRequestedPayload asks the worker to push a notification to every device of a user.
type PushRequestedPayload struct {
	RequestID string                 `json:"requestId"`
	UserID    string                 `json:"userId"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
