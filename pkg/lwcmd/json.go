package lwcmd

import (
	"encoding/json"
	"fmt"
)

// Command names used by the console JSON bridge.
const (
	NameGetDateTime          = "get-datetime"
	NameSetDateTime          = "set-datetime"
	NameSetSleepInterval     = "set-sleep-interval"
	NameSetSleepIntervalLong = "set-sleep-interval-long"
	NameSetStatusInterval    = "set-status-interval"
	NameGetConfig            = "get-config"
	NameGetStatus            = "get-status"
)

// Name returns the JSON bridge name of a command.
func Name(cmd Command) string {
	switch cmd.(type) {
	case GetDateTime:
		return NameGetDateTime
	case SetDateTime:
		return NameSetDateTime
	case SetSleepInterval:
		return NameSetSleepInterval
	case SetSleepIntervalLong:
		return NameSetSleepIntervalLong
	case SetStatusInterval:
		return NameSetStatusInterval
	case GetConfig:
		return NameGetConfig
	case GetStatus:
		return NameGetStatus
	default:
		return "unknown"
	}
}

// PortName returns the JSON bridge name for a command port. Responses arrive
// on the request port, so this also names uplinked responses.
func PortName(port uint8) string {
	switch port {
	case PortGetDateTime:
		return NameGetDateTime
	case PortSetDateTime:
		return NameSetDateTime
	case PortSetSleepInterval:
		return NameSetSleepInterval
	case PortSetSleepIntervalLong:
		return NameSetSleepIntervalLong
	case PortSetStatusInterval:
		return NameSetStatusInterval
	case PortGetConfig:
		return NameGetConfig
	case PortGetStatus:
		return NameGetStatus
	default:
		return "unknown"
	}
}

// FromJSON builds a command from a console JSON object such as
// {"cmd":"set-sleep-interval","seconds":300}. Parameters the named command
// does not take are rejected when missing, not when extra.
func FromJSON(data []byte) (Command, error) {
	var req struct {
		Cmd     string  `json:"cmd"`
		Epoch   *uint32 `json:"epoch"`
		Seconds *uint16 `json:"seconds"`
		Frames  *uint8  `json:"frames"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	switch req.Cmd {
	case NameGetDateTime:
		return GetDateTime{}, nil

	case NameSetDateTime:
		if req.Epoch == nil {
			return nil, fmt.Errorf("%s: missing epoch", req.Cmd)
		}
		return SetDateTime{Epoch: *req.Epoch}, nil

	case NameSetSleepInterval:
		if req.Seconds == nil {
			return nil, fmt.Errorf("%s: missing seconds", req.Cmd)
		}
		return SetSleepInterval{Seconds: *req.Seconds}, nil

	case NameSetSleepIntervalLong:
		if req.Seconds == nil {
			return nil, fmt.Errorf("%s: missing seconds", req.Cmd)
		}
		return SetSleepIntervalLong{Seconds: *req.Seconds}, nil

	case NameSetStatusInterval:
		if req.Frames == nil {
			return nil, fmt.Errorf("%s: missing frames", req.Cmd)
		}
		return SetStatusInterval{Frames: *req.Frames}, nil

	case NameGetConfig:
		return GetConfig{}, nil

	case NameGetStatus:
		return GetStatus{}, nil

	default:
		return nil, fmt.Errorf("command %q: %w", req.Cmd, ErrUnknownCommand)
	}
}
