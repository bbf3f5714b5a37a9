package audit

import (
	"encoding/json"
	"time"

	"github.com/platinummonkey/clinicq/pkg/reqctx"
)

// ItemType is the closed set of entity categories recorded in the audit trail.
// Adding a value requires a Classify rule and a routing decision in router.go.
type ItemType string

const (
	// Shared entities
	ItemTypeUser         ItemType = "USER"
	ItemTypeCompany      ItemType = "COMPANY"
	ItemTypeSubscription ItemType = "SUBSCRIPTION"

	// Tenant entities
	ItemTypeBranch  ItemType = "BRANCH"
	ItemTypePatient ItemType = "PATIENT"
	ItemTypeDoctor  ItemType = "DOCTOR"
	ItemTypeService ItemType = "SERVICE"
	ItemTypeQueue   ItemType = "QUEUE"
	ItemTypePayment ItemType = "PAYMENT"
	ItemTypeDrug    ItemType = "DRUG"
)

var allItemTypes = []ItemType{
	ItemTypeUser,
	ItemTypeCompany,
	ItemTypeSubscription,
	ItemTypeBranch,
	ItemTypePatient,
	ItemTypeDoctor,
	ItemTypeService,
	ItemTypeQueue,
	ItemTypePayment,
	ItemTypeDrug,
}

// AllItemTypes returns every item type in declaration order
func AllItemTypes() []ItemType {
	out := make([]ItemType, len(allItemTypes))
	copy(out, allItemTypes)
	return out
}

// Valid reports whether t is a member of the closed set
func (t ItemType) Valid() bool {
	for _, v := range allItemTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Event is the lifecycle event that produced an entry
type Event string

const (
	EventCreate     Event = "CREATE"
	EventUpdate     Event = "UPDATE"
	EventDelete     Event = "DELETE"
	EventSoftDelete Event = "SOFT_DELETE"
	EventRestore    Event = "RESTORE"
)

// Valid reports whether e is a known lifecycle event
func (e Event) Valid() bool {
	switch e {
	case EventCreate, EventUpdate, EventDelete, EventSoftDelete, EventRestore:
		return true
	}
	return false
}

// ObjectChanges holds the before/after field maps of an entry. Either side
// may be nil; both keys are always serialized.
type ObjectChanges struct {
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
}

// LogEntry is one append-only audit trail record
type LogEntry struct {
	ID            int64            `json:"id"`
	ItemID        *string          `json:"item_id"`
	ItemType      ItemType         `json:"item_type"`
	Event         Event            `json:"event"`
	ActorID       *string          `json:"actor_id"`
	ActorType     reqctx.ActorType `json:"actor_type"`
	ObjectChanges *ObjectChanges   `json:"object_changes"`
	IP            *string          `json:"ip"`
	UserAgent     *string          `json:"user_agent"`
	RequestID     *string          `json:"request_id"`
	Source        *string          `json:"source"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ToJSON converts the entry to JSON
func (e *LogEntry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Mutation describes one committed lifecycle event handed to the recorder.
//
// Entity is the post-mutation state. Before is the pre-mutation state and is
// required for UPDATE; for DELETE and SOFT_DELETE it is used in place of
// Entity when present. Touched lists the field names the storage layer
// marked as assigned by an UPDATE; nil means change tracking is unavailable
// and every field is compared.
type Mutation struct {
	Event   Event
	Entity  any
	Before  any
	Touched []string
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
