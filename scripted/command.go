package scripted

import (
	"errors"
	"fmt"

	"github.com/cepro/scriptedemitter/emitter"
)

const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandScript = "script"
)

var (
	errMissingCommandType = errors.New("missing required property commandType")
	errMissingScript      = errors.New("missing required property script")
	errDecodeScript       = errors.New("failed to decode property script")
	errMalformedPayload   = errors.New("malformed command payload")
	errUnknownCommand     = errors.New("unknown command")
	errDisposed           = errors.New("emitter disposed")
)

// command is one of the decoded command variants below.
type command interface {
	isCommand()
}

type startCommand struct{}

type stopCommand struct{}

type replaceScriptCommand struct {
	script Script
}

func (startCommand) isCommand()         {}
func (stopCommand) isCommand()          {}
func (replaceScriptCommand) isCommand() {}

// commandPayload is the wire shape of a command payload: {"commandType": "start"|"stop"|"script", "script": {...}}.
type commandPayload struct {
	CommandType *string `json:"commandType"`
	Script      any     `json:"script"`
}

// decodeCommand turns an untyped payload into a command, or explains why it can't.
func decodeCommand(payload any) (command, error) {
	var p commandPayload
	err := decode(payload, &p, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if p.CommandType == nil {
		return nil, errMissingCommandType
	}

	switch *p.CommandType {
	case CommandStart:
		return startCommand{}, nil
	case CommandStop:
		return stopCommand{}, nil
	case CommandScript:
		if p.Script == nil {
			return nil, errMissingScript
		}
		script, err := DecodeScript(p.Script)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errDecodeScript, err)
		}
		err = script.Validate()
		if err != nil {
			return nil, fmt.Errorf("invalid script: %w", err)
		}
		return replaceScriptCommand{script: script}, nil
	default:
		return nil, errUnknownCommand
	}
}

// SendCommand decodes and performs `cmd`. Malformed commands never panic or error, they produce a failed
// ExecutionResult describing the problem. The ActionID is always echoed back.
func (e *ScriptedEmitter) SendCommand(cmd emitter.Command) emitter.ExecutionResult {
	result := emitter.ExecutionResult{ActionID: cmd.ActionID}

	if e.IsDisposed() {
		result.FailureReason = errDisposed.Error()
		return result
	}

	decoded, err := decodeCommand(cmd.Payload)
	if err != nil {
		e.Logger().Warn("Rejected command", "action_id", cmd.ActionID, "error", err)
		result.FailureReason = err.Error()
		return result
	}

	switch c := decoded.(type) {
	case startCommand:
		e.Start()
	case stopCommand:
		e.Stop()
	case replaceScriptCommand:
		e.scheduler.replaceScript(c.script)
		e.Logger().Info("Replaced script", "action_id", cmd.ActionID, "num_events", len(c.script.Events))
	}

	result.Success = true
	return result
}
