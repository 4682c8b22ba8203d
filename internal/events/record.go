package events

// Record is one event: a code plus two opaque parameters.
type Record struct {
	Code   Code
	Param1 any
	Param2 any
}

// Payload is an auxiliary object whose lifetime must track the event that
// carries it. Retain is called when the record is queued and Release when
// the record is freed.
type Payload interface {
	Retain()
	Release()
}

// owned lists which params carry a Payload for each owning code.
type owned struct {
	param1, param2 bool
}

var ownership = map[Code]owned{
	Repaint:              {param1: true},
	WindowDestroyed:      {param1: true},
	DisplayChanged:       {param1: true},
	StreamControlStopped: {param1: true},
	StreamControlStarted: {param1: true},
	OLEEvent:             {param1: true, param2: true},
	ErrorAbortEx:         {param2: true},
}

// OwnsPayload reports whether records with code c carry payload ownership.
func OwnsPayload(c Code) bool {
	_, ok := ownership[c]
	return ok
}

// RetainPayload retains the payloads a record owns.
func RetainPayload(r Record) {
	forEachPayload(r, Payload.Retain)
}

// ReleasePayload releases the payloads a record owns.
func ReleasePayload(r Record) {
	forEachPayload(r, Payload.Release)
}

func forEachPayload(r Record, fn func(Payload)) {
	o, ok := ownership[r.Code]
	if !ok {
		return
	}
	if o.param1 {
		if p, ok := r.Param1.(Payload); ok && p != nil {
			fn(p)
		}
	}
	if o.param2 {
		if p, ok := r.Param2.(Payload); ok && p != nil {
			fn(p)
		}
	}
}
