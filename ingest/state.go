package ingest

import "context"

// State is a specific state in the ingestion fsm.
type State int

// States and their explanations.
// Each state is implemented by a stateFunc in its own file.
const (
	// Terminal is the state which halts the fsm and returns to the caller.
	Terminal State = iota
	// Pending validates the task payload.
	// Transitions: Fetching, Terminal
	Pending
	// Fetching materializes the archive bytes into a local spool,
	// either from the upstream URL or out of the archive bucket.
	// Transitions: Hashing
	Fetching
	// Hashing walks the spooled tar, computing the inner and outer
	// digest sets and the full file listing.
	// Transitions: Storing
	Hashing
	// Storing persists the artifact, its aliases, lockfiles found
	// inside and the bucket copy.
	// Transitions: Expanding
	Storing
	// Expanding enqueues sub-tasks for nested archives.
	// Transitions: Done
	Expanding
	// Done is the last state before Terminal.
	// Transitions: Terminal
	Done
	// TaskError indicates an impassable error has occurred.
	// Transitions: Terminal
	TaskError
)

func (s State) String() string {
	names := [...]string{
		"Terminal",
		"Pending",
		"Fetching",
		"Hashing",
		"Storing",
		"Expanding",
		"Done",
		"TaskError",
	}
	return names[s]
}

// stateFunc implements the logic of one state.
// Returning an error exits the controller in an error state.
// Returning Terminal ends the controller in a non-error state.
type stateFunc func(context.Context, *Controller) (State, error)

var stateToStateFunc = map[State]stateFunc{
	Pending:   pending,
	Fetching:  fetchArchive,
	Hashing:   hashArchive,
	Storing:   storeArtifact,
	Expanding: expandArtifact,
	Done:      ingestFinished,
}
