package protocol

// Server event variants. Every outbound event carries a freshly minted
// event_id; minting happens at the construction site so the emitter stays a
// pure FIFO.

type ErrorEvent struct {
	Type    EventType    `json:"type"`
	EventID string       `json:"event_id"`
	Error   ErrorDetails `json:"error"`
}

type SessionCreated struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id"`
	Session Session   `json:"session"`
}

type SessionUpdated struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id"`
	Session Session   `json:"session"`
}

type ConversationCreated struct {
	Type         EventType    `json:"type"`
	EventID      string       `json:"event_id"`
	Conversation Conversation `json:"conversation"`
}

type ConversationItemCreated struct {
	Type           EventType        `json:"type"`
	EventID        string           `json:"event_id"`
	PreviousItemID *string          `json:"previous_item_id"`
	Item           ConversationItem `json:"item"`
}

type InputAudioTranscriptionCompleted struct {
	Type         EventType `json:"type"`
	EventID      string    `json:"event_id"`
	ItemID       string    `json:"item_id"`
	ContentIndex int       `json:"content_index"`
	Transcript   string    `json:"transcript"`
}

type InputAudioBufferCommitted struct {
	Type           EventType `json:"type"`
	EventID        string    `json:"event_id"`
	PreviousItemID *string   `json:"previous_item_id"`
	ItemID         string    `json:"item_id"`
}

type InputAudioBufferCleared struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id"`
}

type ConversationInterrupted struct {
	Type    EventType `json:"type"`
	EventID string    `json:"event_id"`
}

type ResponseCreated struct {
	Type     EventType `json:"type"`
	EventID  string    `json:"event_id"`
	Response Response  `json:"response"`
}

type ResponseDone struct {
	Type     EventType `json:"type"`
	EventID  string    `json:"event_id"`
	Response Response  `json:"response"`
}

type ResponseOutputItemAdded struct {
	Type        EventType        `json:"type"`
	EventID     string           `json:"event_id"`
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

type ResponseOutputItemDone struct {
	Type        EventType        `json:"type"`
	EventID     string           `json:"event_id"`
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

type ResponseContentPartAdded struct {
	Type         EventType   `json:"type"`
	EventID      string      `json:"event_id"`
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type ResponseContentPartDone struct {
	Type         EventType   `json:"type"`
	EventID      string      `json:"event_id"`
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type ResponseTextDelta struct {
	Type         EventType `json:"type"`
	EventID      string    `json:"event_id"`
	ResponseID   string    `json:"response_id"`
	ItemID       string    `json:"item_id"`
	OutputIndex  int       `json:"output_index"`
	ContentIndex int       `json:"content_index"`
	Delta        string    `json:"delta"`
}

type ResponseTextDone struct {
	Type         EventType `json:"type"`
	EventID      string    `json:"event_id"`
	ResponseID   string    `json:"response_id"`
	ItemID       string    `json:"item_id"`
	OutputIndex  int       `json:"output_index"`
	ContentIndex int       `json:"content_index"`
	Text         string    `json:"text"`
}

type ResponseAudioDelta struct {
	Type         EventType `json:"type"`
	EventID      string    `json:"event_id"`
	ResponseID   string    `json:"response_id"`
	ItemID       string    `json:"item_id"`
	OutputIndex  int       `json:"output_index"`
	ContentIndex int       `json:"content_index"`
	Delta        string    `json:"delta"`
}

type ResponseAudioDone struct {
	Type         EventType `json:"type"`
	EventID      string    `json:"event_id"`
	ResponseID   string    `json:"response_id"`
	ItemID       string    `json:"item_id"`
	OutputIndex  int       `json:"output_index"`
	ContentIndex int       `json:"content_index"`
}
