package node

import "errors"

var (
	ErrNodeStopped = errors.New("node not started")

	errInvalidName = errors.New(`Config.Name must not contain '/' or '\'`)
)
