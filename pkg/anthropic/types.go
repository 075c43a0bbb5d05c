package anthropic

// MessageRequest describes a single model call. The triage stages build one
// of these per denial letter, with the stage's instructions in System and
// the letter or drafting context in Messages.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is one block of system-prompt text. A block with CacheControl
// set becomes a prompt-cache breakpoint.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl marks a block cacheable for the given TTL ("5m" or "1h").
type CacheControl struct {
	TTL string
}

// Message is one turn of the conversation.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is the model's reply to a MessageRequest.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// ContentBlock is one block of response content.
type ContentBlock struct {
	Type string
	Text string
}

// BatchRequest submits many message requests through the Message Batches
// API. Intake classification uses this to triage a directory of letters in
// one round trip.
type BatchRequest struct {
	Requests []BatchRequestItem
}

// BatchRequestItem pairs a request with the caller's correlation ID.
type BatchRequestItem struct {
	CustomID string
	Params   MessageRequest
}

// BatchResponse reports the processing state of a submitted batch.
type BatchResponse struct {
	ID               string
	ProcessingStatus string
	ResultsURL       string
	RequestCounts    RequestCounts
}

// RequestCounts tallies batch items by terminal status.
type RequestCounts struct {
	Processing int64
	Succeeded  int64
	Errored    int64
	Canceled   int64
	Expired    int64
}

// BatchResultItem is one item streamed from a finished batch.
type BatchResultItem struct {
	CustomID string
	Type     string // "succeeded", "errored", "canceled", "expired"
	Message  *MessageResponse
}

// BatchResultIterator streams the individual results of a finished batch.
type BatchResultIterator interface {
	Next() bool
	Item() BatchResultItem
	Err() error
	Close() error
}
