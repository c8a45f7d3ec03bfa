package session

import "pdfchat/internal/domain"

type EventKind int

const (
	EventIndexProgress EventKind = iota
	EventIndexReady
	EventIndexFailed
	EventAnswer
	EventAnswerFailed
)

func (k EventKind) String() string {
	switch k {
	case EventIndexProgress:
		return "index_progress"
	case EventIndexReady:
		return "index_ready"
	case EventIndexFailed:
		return "index_failed"
	case EventAnswer:
		return "answer"
	case EventAnswerFailed:
		return "answer_failed"
	default:
		return "unknown"
	}
}

// Event reports progress or completion of a background task.
type Event struct {
	Kind   EventKind
	TaskID string
	Path   string

	// index progress
	Done, Total int

	// index ready
	Document domain.Document
	Chunks   int
	Summary  string

	// answers
	Question string
	Result   *domain.AnswerResult

	Err error
}
