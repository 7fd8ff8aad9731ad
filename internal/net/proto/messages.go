package proto

import (
	"encoding/json"
	"fmt"

	"raise-and-raze/editor/internal/mirror"
)

const (
	// Version tracks the wire-protocol revision of the editor channel.
	Version = 1
)

// Client → server frame type identifiers.
const (
	TypeIntent          = "intent"
	TypeUndo            = "undo"
	TypeSnapshotRequest = "snapshotRequest"
	TypeHeartbeat       = "heartbeat"
)

// Server → client frame type identifiers. Heartbeat echoes reuse TypeHeartbeat.
const (
	TypeIntentAck    = "intentAck"
	TypeIntentReject = "intentReject"
	TypeUndoAck      = "undoAck"
	TypeUndoReject   = "undoReject"
	TypeSpawned      = "spawned"
	TypeUpdated      = "updated"
	TypeDespawned    = "despawned"
	TypeSnapshot     = "snapshot"
)

// IntentFrame is one editor intent submission. CorrelationID is empty for
// one-shot intents; repeated submissions under one correlation id amend the
// same server-side undo unit.
type IntentFrame struct {
	Seq           uint64
	Kind          string
	CorrelationID string
	Payload       any
}

// EncodeIntent renders an intent submission frame.
func EncodeIntent(msg IntentFrame) ([]byte, error) {
	frame := struct {
		Ver           int    `json:"ver"`
		Type          string `json:"type"`
		Seq           uint64 `json:"seq"`
		Kind          string `json:"kind"`
		CorrelationID string `json:"correlationId,omitempty"`
		Payload       any    `json:"payload,omitempty"`
	}{
		Ver:           Version,
		Type:          TypeIntent,
		Seq:           msg.Seq,
		Kind:          msg.Kind,
		CorrelationID: msg.CorrelationID,
		Payload:       msg.Payload,
	}
	return json.Marshal(frame)
}

// UndoFrame requests exact rollback of everything submitted under one
// correlation id.
type UndoFrame struct {
	Seq           uint64
	CorrelationID string
}

// EncodeUndo renders an undo request frame.
func EncodeUndo(msg UndoFrame) ([]byte, error) {
	frame := struct {
		Ver           int    `json:"ver"`
		Type          string `json:"type"`
		Seq           uint64 `json:"seq"`
		CorrelationID string `json:"correlationId"`
	}{
		Ver:           Version,
		Type:          TypeUndo,
		Seq:           msg.Seq,
		CorrelationID: msg.CorrelationID,
	}
	return json.Marshal(frame)
}

// SnapshotRequest asks the server for a full authoritative entity list.
type SnapshotRequest struct {
	Seq    uint64
	Reason string
}

// EncodeSnapshotRequest renders a snapshot request frame.
func EncodeSnapshotRequest(msg SnapshotRequest) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		Seq    uint64 `json:"seq"`
		Reason string `json:"reason,omitempty"`
	}{
		Ver:    Version,
		Type:   TypeSnapshotRequest,
		Seq:    msg.Seq,
		Reason: msg.Reason,
	}
	return json.Marshal(frame)
}

// HeartbeatFrame carries client timing for RTT measurement.
type HeartbeatFrame struct {
	SentAt int64
}

// EncodeHeartbeat renders a heartbeat frame.
func EncodeHeartbeat(msg HeartbeatFrame) ([]byte, error) {
	frame := struct {
		Ver    int    `json:"ver"`
		Type   string `json:"type"`
		SentAt int64  `json:"sentAt"`
	}{
		Ver:    Version,
		Type:   TypeHeartbeat,
		SentAt: msg.SentAt,
	}
	return json.Marshal(frame)
}

// ServerMessage captures an inbound frame from the game server. Only the
// fields for the declared Type are populated; a zero Seq means the frame is
// not a reply (client sequence numbers start at 1).
type ServerMessage struct {
	Ver           int                  `json:"ver,omitempty"`
	Type          string               `json:"type"`
	Seq           uint64               `json:"seq,omitempty"`
	CorrelationID string               `json:"correlationId,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	UID           string               `json:"uid,omitempty"`
	Kind          string               `json:"kind,omitempty"`
	Position      [3]float64           `json:"position"`
	Revision      uint64               `json:"revision,omitempty"`
	Entities      []mirror.EntityState `json:"entities,omitempty"`
	ServerTime    int64                `json:"serverTime,omitempty"`
	SentAt        int64                `json:"sentAt,omitempty"`
}

// DecodeServerMessage converts raw websocket payloads into a structured frame.
func DecodeServerMessage(payload []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported server protocol version %d", msg.Ver)
	}
	return msg, nil
}
