package classify

import (
	"time"

	"github.com/starford/yardmove/internal/apperr"
)

// Operations reported in an Outcome.
const (
	OpLoad       = "load"
	OpReclassify = "reclassify"
)

// Outcome is the result of one session operation as shown to the operator.
type Outcome struct {
	Op       string `json:"op"`
	ZoneID   string `json:"zoneId,omitempty"`
	ZoneName string `json:"zoneName,omitempty"`
	Target   string `json:"target,omitempty"`
	OK       bool   `json:"ok"`
	// Kind is "ok" or the apperr kind of the failure.
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Plain   int       `json:"plain"`
	Tagged  int       `json:"tagged"`
	Err     error     `json:"-"`
	At      time.Time `json:"at"`
}

// Notifier receives every outcome. Implementations must not block.
type Notifier interface {
	Notify(Outcome)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Outcome)

// Notify calls f.
func (f NotifierFunc) Notify(o Outcome) { f(o) }

type fanout []Notifier

func (f fanout) Notify(o Outcome) {
	for _, n := range f {
		n.Notify(o)
	}
}

// Fanout returns a Notifier that forwards to every non-nil n in order.
func Fanout(ns ...Notifier) Notifier {
	out := make(fanout, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func failure(op string, err error) Outcome {
	return Outcome{
		Op:   op,
		Kind: apperr.Kind(err),
		Err:  err,
		At:   time.Now(),
	}
}
