// Package orchestrator drives the full-scan + watch pipeline that ties the
// backend, pathresolve, index, journal, and snapshot packages together
// (spec §4.8). Its state machine is an explicit enum with a transition
// table, the way rclone represents small closed value sets such as
// backend/local/local.go's timeType (an fs.Enum[timeType] with
// String()/Choices() methods) rather than a bare string or int.
package orchestrator

import "fmt"

// State is one node of the indexer's state machine (spec §4.8).
type State int

const (
	Idle State = iota
	Loading
	Scanning
	Persisting
	Watching
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Scanning:
		return "scanning"
	case Persisting:
		return "persisting"
	case Watching:
		return "watching"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Choices lists every defined state, mirroring the Choices() method rclone
// attaches to its own small enums for flag-completion and validation.
func Choices() []State {
	return []State{Idle, Loading, Scanning, Persisting, Watching, Stopping}
}

// Event is a trigger that may move the state machine along one of the
// edges in spec §4.8's table.
type Event int

const (
	EventSnapshotFound Event = iota
	EventSnapshotMissing
	EventLoadFailed
	EventScanComplete
	EventPersisted
	EventJournalLost
	EventShutdown
)

func (e Event) String() string {
	switch e {
	case EventSnapshotFound:
		return "snapshot_found"
	case EventSnapshotMissing:
		return "snapshot_missing"
	case EventLoadFailed:
		return "load_failed"
	case EventScanComplete:
		return "scan_complete"
	case EventPersisted:
		return "persisted"
	case EventJournalLost:
		return "journal_lost"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// transition implements the edge table from spec §4.8 exactly:
//
//	Idle       -> Loading (snapshot present) | Scanning (no snapshot)
//	Loading    -> Watching (load succeeded)  | Scanning (load failed)
//	Scanning   -> Persisting (scan complete)
//	Persisting -> Watching (persisted)
//	Watching   -> Scanning (journal lost)    | Stopping (shutdown)
//	Stopping   -> Stopping (terminal)
func transition(from State, ev Event) (State, error) {
	switch from {
	case Idle:
		switch ev {
		case EventSnapshotFound:
			return Loading, nil
		case EventSnapshotMissing:
			return Scanning, nil
		}
	case Loading:
		switch ev {
		case EventScanComplete:
			return Watching, nil
		case EventLoadFailed:
			return Scanning, nil
		}
	case Scanning:
		switch ev {
		case EventScanComplete:
			return Persisting, nil
		}
	case Persisting:
		switch ev {
		case EventPersisted:
			return Watching, nil
		}
	case Watching:
		switch ev {
		case EventJournalLost:
			return Scanning, nil
		case EventShutdown:
			return Stopping, nil
		}
	case Stopping:
		return Stopping, nil
	}
	return from, fmt.Errorf("orchestrator: invalid event %s in state %s", ev, from)
}
