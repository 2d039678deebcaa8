package observability

const (
	headerRequestID = "x-request-id"
	headerTraceID   = "trace_id"
)

// EventEnvelope is the body shape of everything the chat service puts
// on the topic exchange: audit entries and websocket lifecycle events.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders assembles the AMQP headers consumers use to correlate an
// event with the originating chat request and trace.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers[headerRequestID] = requestID
	}
	if traceID != "" {
		headers[headerTraceID] = traceID
	}
	return headers
}
