package intents

// Kind identifies one network intent type the editor can submit.
type Kind string

const (
	// KindTransform carries continuous gesture edits (translate/rotate/scale/place).
	KindTransform Kind = "entity-transform"
	// KindSpawn places a freshly loaded object into the world.
	KindSpawn Kind = "entity-spawn"
	// KindDuplicate clones the current targets under new uids.
	KindDuplicate Kind = "entity-duplicate"
	// KindDelete removes the current targets.
	KindDelete Kind = "entity-delete"
)

// Payload is implemented by every struct that can travel as an intent payload.
// Implementations embed IntentPayload to satisfy the interface.
type Payload interface {
	payloadMarker()
}

// IntentPayload is embedded into payload structs to mark them as intent payloads.
type IntentPayload struct{}

func (IntentPayload) payloadMarker() {}
