package node

import "errors"

var (
	ErrInvalidArgument    = errors.New("node: invalid argument")
	ErrNotInitialized     = errors.New("node: registry not initialized")
	ErrAlreadyInitialized = errors.New("node: registry already initialized")
	ErrNilHandler         = errors.New("node: handler is nil")
	ErrRegistryFull       = errors.New("node: registry capacity exhausted")
	ErrDuplicatePort      = errors.New("node: port already has a handler")
	ErrPortUnresolved     = errors.New("node: port identifier unresolved")
	ErrKindMismatch       = errors.New("node: subscription kind does not match handler")
	ErrNotBound           = errors.New("node: handler not bound to a transport")
	ErrNotRequest         = errors.New("node: response requires a request transfer")
)
