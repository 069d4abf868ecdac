package graph

import "errors"

// The error taxonomy from the design's error-handling section. Precondition
// violations are reported as a failed return (nil/false) paired with one of
// these sentinels for callers that want the reason; nothing in the audio
// path ever returns or panics on these — see Coordinator.ProcessBlockF/
// ProcessBlockD, which handle SettingsDrift and NoSequenceAvailable inline
// by silencing the output (render.Clear) instead.
var (
	// ErrNilProcessor is returned by Registry.Add for a nil processor.
	ErrNilProcessor = errors.New("graph: processor is nil")
	// ErrDuplicateProcessor is returned by Registry.Add when the same
	// processor instance is already owned by another node.
	ErrDuplicateProcessor = errors.New("graph: processor already added to graph")
	// ErrDuplicateNodeID is returned by Registry.Add when id is already in use.
	ErrDuplicateNodeID = errors.New("graph: node id already in use")
	// ErrReservedNodeID is returned when a caller supplies an id in the
	// sentinel range reserved for buffer bookkeeping.
	ErrReservedNodeID = errors.New("graph: node id is reserved")

	// ErrIllegalConnection is returned by ConnectionSet.Add when the
	// connection fails a legality rule (see ConnectionSet.Legal).
	ErrIllegalConnection = errors.New("graph: connection is not legal")
	// ErrAlreadyConnected is returned by ConnectionSet.Add for a duplicate edge.
	ErrAlreadyConnected = errors.New("graph: connection already exists")
)
