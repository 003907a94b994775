package agent

import "errors"

var (
	// ErrLoopExhausted is reported when a cycle reaches its round-trip bound
	// or its deadline without a terminal call.
	ErrLoopExhausted = errors.New("resolution loop exhausted")

	// ErrAmbiguousIntent is reported when gathering could not narrow a
	// request down to one event.
	ErrAmbiguousIntent = errors.New("ambiguous request")

	// ErrInvalidStep is reported when a reasoning step proposes no call,
	// several terminal calls, or terminal and gathering calls together.
	ErrInvalidStep = errors.New("invalid reasoning step")

	// ErrUnknownTool is returned by DecodeCall for names not in the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned by DecodeCall when arguments do not
	// match the tool's schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
