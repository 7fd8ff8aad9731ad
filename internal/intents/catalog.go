package intents

// DocumentVersion tracks the catalog layout revision.
const DocumentVersion = 1

// Document is the tooling-facing catalog: every intent kind the editor can
// submit, with its undo participation and payload shape. cmd/schema reflects
// this type into the published JSON schema.
type Document struct {
	Version   int            `json:"version" jsonschema:"required"`
	Transform TransformEntry `json:"entity-transform"`
	Spawn     SpawnEntry     `json:"entity-spawn"`
	Duplicate DuplicateEntry `json:"entity-duplicate"`
	Delete    DeleteEntry    `json:"entity-delete"`
}

type TransformEntry struct {
	Undoable bool             `json:"undoable"`
	Payload  TransformPayload `json:"payload"`
}

type SpawnEntry struct {
	Undoable bool         `json:"undoable"`
	Payload  SpawnPayload `json:"payload"`
}

type DuplicateEntry struct {
	Undoable bool             `json:"undoable"`
	Payload  DuplicatePayload `json:"payload"`
}

type DeleteEntry struct {
	Undoable bool          `json:"undoable"`
	Payload  DeletePayload `json:"payload"`
}

// BuildDocument renders the default registry into the catalog document.
func BuildDocument() Document {
	index := DefaultRegistry().MustIndex()
	return Document{
		Version:   DocumentVersion,
		Transform: TransformEntry{Undoable: index[KindTransform].Undoable},
		Spawn:     SpawnEntry{Undoable: index[KindSpawn].Undoable},
		Duplicate: DuplicateEntry{Undoable: index[KindDuplicate].Undoable},
		Delete:    DeleteEntry{Undoable: index[KindDelete].Undoable},
	}
}
