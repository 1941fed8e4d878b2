package fsm

// Event class names under which the distinguished events are registered.
// Every Registry pre-registers both.
const (
	CreateEventName = "fsm.Create"
	CancelEventName = "fsm.CancelTimedSignal"
)

// Create is the distinguished creation event. The runtime delivers it to
// a fresh machine when a signal targets an entity with no persisted row.
type Create struct{}

// CancelTimedSignal removes the delayed signal keyed by
// (FromClass, FromID) -> (target class, target id of the carrying
// signal). It is handled entirely by the runtime: no machine transition
// occurs.
type CancelTimedSignal struct {
	FromClass string `json:"fromClass"`
	FromID    string `json:"fromId"`
}
