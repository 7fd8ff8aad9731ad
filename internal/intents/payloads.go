package intents

import "raise-and-raze/editor/internal/entity"

// Transform operations carried by TransformPayload.
const (
	OpTranslate = "translate"
	OpRotate    = "rotate"
	OpScale     = "scale"
	OpPlace     = "place"
)

// TransformPayload is the gesture payload: the named operation applied to the
// target entities with the given per-axis values. Values are final numbers;
// snapping and coordinate-space conversion happen before the payload is built.
type TransformPayload struct {
	IntentPayload
	Targets []entity.UID `json:"targets" jsonschema:"required,minItems=1"`
	Op      string       `json:"op" jsonschema:"required,enum=translate,enum=rotate,enum=scale,enum=place"`
	Values  [3]float64   `json:"values" jsonschema:"required"`
	Global  bool         `json:"global,omitempty"`
}

// SpawnPayload places a loaded asset into the world under a pre-minted uid so
// the editor can select the entity before replication catches up.
type SpawnPayload struct {
	IntentPayload
	AssetURL string     `json:"assetUrl" jsonschema:"required"`
	UID      entity.UID `json:"uid" jsonschema:"required"`
	Position [3]float64 `json:"position"`
}

// DuplicatePayload clones Sources in order; Clones carries the pre-minted uid
// for each clone, index-aligned with Sources.
type DuplicatePayload struct {
	IntentPayload
	Sources []entity.UID `json:"sources" jsonschema:"required,minItems=1"`
	Clones  []entity.UID `json:"clones" jsonschema:"required,minItems=1"`
}

// DeletePayload removes the listed entities.
type DeletePayload struct {
	IntentPayload
	Targets []entity.UID `json:"targets" jsonschema:"required,minItems=1"`
}
