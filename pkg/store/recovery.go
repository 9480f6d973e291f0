package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/ssargent/aora/pkg/codec"
)

// RecoveryState is a step of the recovery run at open
type RecoveryState int

const (
	StateScanning RecoveryState = iota
	StateRepairing
	StateReady
	StateUnrecoverable
)

func (s RecoveryState) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateRepairing:
		return "repairing"
	case StateReady:
		return "ready"
	case StateUnrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RecoveryResult holds the outcome of recovering a log at open
type RecoveryResult struct {
	Path             []RecoveryState // States visited, in order
	RecordsValidated uint64          // Complete frames replayed into the index
	BytesTruncated   int64           // Size of the torn tail that was dropped
	TornOffset       int64           // Where the torn tail started, -1 if none
	FileSizeBefore   int64
	FileSizeAfter    int64
	RecoveryTime     time.Duration
}

// State returns the final state
func (r *RecoveryResult) State() RecoveryState {
	if len(r.Path) == 0 {
		return StateScanning
	}
	return r.Path[len(r.Path)-1]
}

// Repaired reports whether a torn tail was truncated
func (r *RecoveryResult) Repaired() bool {
	return r.BytesTruncated > 0
}

// recoverLog runs the recovery state machine once:
//
//	Scanning -> Repairing -> Ready
//	Scanning -> Ready
//	Scanning -> Unrecoverable
//
// It leaves idx consistent with log and seals the log on success.
func recoverLog[K comparable](log *Log, idx *Index[K], recoverKey KeyRecoverer[K]) (*RecoveryResult, error) {
	start := time.Now()
	res := &RecoveryResult{
		FileSizeBefore: log.Size(),
		TornOffset:     -1,
	}

	var (
		rebuilt RebuildResult
		failure error
	)

	state := StateScanning
	for {
		res.Path = append(res.Path, state)

		switch state {
		case StateScanning:
			var err error
			rebuilt, err = idx.RebuildFrom(log, recoverKey)
			res.RecordsValidated = rebuilt.Frames
			switch {
			case err == nil && rebuilt.Torn:
				state = StateRepairing
			case err == nil:
				state = StateReady
			case isCorruption(err):
				failure = err
				state = StateUnrecoverable
			default:
				// Backend failure: nothing is known about the log, so no
				// state is reached.
				idx.Clear()
				return nil, err
			}

		case StateRepairing:
			if err := log.Truncate(rebuilt.TornOffset); err != nil {
				idx.Clear()
				return nil, err
			}
			if err := log.Sync(); err != nil {
				idx.Clear()
				return nil, err
			}
			res.TornOffset = rebuilt.TornOffset
			res.BytesTruncated = res.FileSizeBefore - rebuilt.TornOffset
			state = StateReady

		case StateReady:
			log.seal()
			res.FileSizeAfter = log.Size()
			res.RecoveryTime = time.Since(start)
			return res, nil

		case StateUnrecoverable:
			idx.Clear()
			res.FileSizeAfter = log.Size()
			res.RecoveryTime = time.Since(start)
			return res, fmt.Errorf("%w: %w", ErrUnrecoverable, failure)
		}
	}
}

// isCorruption reports errors that mean durable data is damaged
func isCorruption(err error) bool {
	var decodeErr *codec.DecodeError
	return errors.Is(err, codec.ErrDigestMismatch) || errors.As(err, &decodeErr)
}
