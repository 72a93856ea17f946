package recovery

import "context"

// Strategy decides how a recoverable fault is handled. Components report the
// fault with its location and act on the returned Action.
type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionFix
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionFix:
		return "fix"
	case ActionWarn:
		return "warn"
	default:
		return "unknown"
	}
}

// Continue reports whether the action lets the caller proceed past the fault.
func (a Action) Continue() bool { return a == ActionSkip || a == ActionFix }
