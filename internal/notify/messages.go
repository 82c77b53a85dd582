package notify

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags every frame exchanged with observers.
type MessageType string

// Outbound message types.
const (
	TypeConnectionAck MessageType = "connection_ack"
	TypeJoined        MessageType = "joined"
	TypeLeft          MessageType = "left"
	TypeJobOutcome    MessageType = "job_outcome"
)

// Inbound message types.
const (
	TypeJoinChannel  MessageType = "join_channel"
	TypeLeaveChannel MessageType = "leave_channel"
)

// AggregateChannel receives every job outcome regardless of job id.
const AggregateChannel = "all-items"

// Outcome statuses carried by job_outcome messages.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Message is the single wire envelope; which fields are set depends on Type.
type Message struct {
	Type         MessageType `json:"type"`
	ChannelID    string      `json:"channel_id,omitempty"`
	ConnectionID string      `json:"connection_id,omitempty"`
	JobID        string      `json:"job_id,omitempty"`
	ItemID       string      `json:"item_id,omitempty"`
	Status       string      `json:"status,omitempty"`
	Error        string      `json:"error,omitempty"`
}

var errMissingChannel = errors.New("channel_id is required")

func ConnectionAck(connectionID string) Message {
	return Message{Type: TypeConnectionAck, ConnectionID: connectionID}
}

func Joined(channelID string) Message { return Message{Type: TypeJoined, ChannelID: channelID} }

func Left(channelID string) Message { return Message{Type: TypeLeft, ChannelID: channelID} }

func JoinChannel(channelID string) Message {
	return Message{Type: TypeJoinChannel, ChannelID: channelID}
}

func LeaveChannel(channelID string) Message {
	return Message{Type: TypeLeaveChannel, ChannelID: channelID}
}

// JobOutcome builds the notification published when a job resolves. errText is
// only kept for failures.
func JobOutcome(jobID, itemID string, completed bool, errText string) Message {
	msg := Message{Type: TypeJobOutcome, JobID: jobID, ItemID: itemID, Status: StatusCompleted}
	if !completed {
		msg.Status = StatusFailed
		msg.Error = errText
	}
	return msg
}

// Validate checks that the message is one of the known types and carries the
// fields that type requires.
func (m Message) Validate() error {
	switch m.Type {
	case TypeConnectionAck:
		if m.ConnectionID == "" {
			return errors.New("connection_ack: connection_id is required")
		}
	case TypeJoined, TypeLeft, TypeJoinChannel, TypeLeaveChannel:
		if m.ChannelID == "" {
			return fmt.Errorf("%s: %w", m.Type, errMissingChannel)
		}
	case TypeJobOutcome:
		if m.JobID == "" {
			return errors.New("job_outcome: job_id is required")
		}
		switch m.Status {
		case StatusCompleted:
			if m.Error != "" {
				return errors.New("job_outcome: completed outcome cannot carry an error")
			}
		case StatusFailed:
		default:
			return fmt.Errorf("job_outcome: unknown status %q", m.Status)
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

// Inbound reports whether observers may send this message type.
func (m Message) Inbound() bool {
	return m.Type == TypeJoinChannel || m.Type == TypeLeaveChannel
}

// Decode parses and validates a frame.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
