package interrupt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects the handler an interrupt is routed to.
type Kind int

const (
	KindTimer Kind = iota
	KindIO
	KindFault

	// kindCount must stay last.
	kindCount
)

var kindNames = [kindCount]string{
	KindTimer: "timer",
	KindIO:    "io",
	KindFault: "fault",
}

// NumKinds is the number of defined kinds. Handler tables are sized by it.
const NumKinds = int(kindCount)

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) Valid() bool { return k >= 0 && k < kindCount }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind accepts the lowercase kind names, case-insensitively.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown interrupt kind %q (want one of %s)", s, strings.Join(kindNames[:], ", "))
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid interrupt kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single interrupt request. It is never modified after New
// returns; holders pass it by value.
type Event struct {
	id        string
	kind      Kind
	priority  int
	createdAt time.Time
}

// New builds an event. Lower priority values are served first.
func New(kind Kind, priority int) Event {
	return Event{
		id:        uuid.NewString(),
		kind:      kind,
		priority:  priority,
		createdAt: time.Now().UTC(),
	}
}

func (e Event) ID() string           { return e.id }
func (e Event) Kind() Kind           { return e.kind }
func (e Event) Priority() int        { return e.priority }
func (e Event) CreatedAt() time.Time { return e.createdAt }

// IsZero reports whether e was never constructed with New.
func (e Event) IsZero() bool { return e.id == "" }

// Before orders events by priority only.
func (e Event) Before(other Event) bool { return e.priority < other.priority }

// Less is Before as a free function, for sort and heap callers.
func Less(a, b Event) bool { return a.Before(b) }

func (e Event) String() string {
	return fmt.Sprintf("%s(priority=%d)", e.kind, e.priority)
}

type eventJSON struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{
		ID:        e.id,
		Kind:      e.kind,
		Priority:  e.priority,
		CreatedAt: e.createdAt,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Event{id: raw.ID, kind: raw.Kind, priority: raw.Priority, createdAt: raw.CreatedAt}
	return nil
}
