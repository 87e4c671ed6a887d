package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTSet        CommandType = iota // Insert or replace an entry.
	CommandTSetIfUnset                    // Insert an entry if it does not exist.
	CommandTDelete                        // Delete an entry.
)

// headerSize is the size of the fixed part of a serialized command: Type + KeyLen
const headerSize = 1 + 4

func (ct CommandType) String() string {
	switch ct {
	case CommandTSet:
		return "Set"
	case CommandTSetIfUnset:
		return "SetIfUnset"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type  CommandType
	Key   string
	Value []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return headerSize + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:headerSize], uint32(len(command.Key)))
	n := copy(result[headerSize:], command.Key)
	copy(result[headerSize+n:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	keyLen := int(binary.BigEndian.Uint32(data[1:headerSize]))

	if len(data) < headerSize+keyLen {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[headerSize : headerSize+keyLen])

	// The value is always materialized (possibly empty) for set commands so
	// that an empty file payload survives the round trip through the log.
	valueLen := len(data) - (headerSize + keyLen)
	if valueLen == 0 && command.Type == CommandTDelete {
		command.Value = nil
		return nil
	}
	// Reuse existing buffer if possible to reduce allocations
	if command.Value == nil || cap(command.Value) < valueLen {
		command.Value = make([]byte, valueLen)
	} else {
		command.Value = command.Value[:valueLen]
	}
	copy(command.Value, data[headerSize+keyLen:])

	return nil
}
