package engine

import (
	"github.com/dshills/hostkeep/internal/hosts"
	"github.com/dshills/hostkeep/internal/writer"
)

// Kind identifies the type of an Event.
type Kind int

const (
	// KindChanged carries the new current document.
	KindChanged Kind = iota
	// KindWriteSucceeded carries the result of a successful write.
	KindWriteSucceeded
	// KindWriteFailed carries the result of a failed write.
	KindWriteFailed
	// KindWatchError carries a watcher or reload error.
	KindWatchError
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindChanged:
		return "changed"
	case KindWriteSucceeded:
		return "write-succeeded"
	case KindWriteFailed:
		return "write-failed"
	case KindWatchError:
		return "watch-error"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers in the order it was published.
// Only the field matching Kind is set.
type Event struct {
	Kind     Kind
	Document *hosts.Document
	Result   writer.Result
	Err      error
}

func changedEvent(doc *hosts.Document) Event {
	return Event{Kind: KindChanged, Document: doc}
}

func writeEvent(res writer.Result) Event {
	if res.Success {
		return Event{Kind: KindWriteSucceeded, Result: res}
	}
	return Event{Kind: KindWriteFailed, Result: res, Err: res.Err}
}

func watchErrorEvent(err error) Event {
	return Event{Kind: KindWatchError, Err: err}
}
