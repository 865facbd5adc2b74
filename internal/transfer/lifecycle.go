// Package transfer runs pack and unpack end to end: it drives the builder,
// the codec, packaging, import, reconciliation and population through one
// lifecycle.
package transfer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/apperrors"
)

// State is a lifecycle stage.
type State int

const (
	Building State = iota
	Serialized
	Packaged
	Unpacked
	Reconciling
	Populating
	Done
)

var stateNames = [...]string{"building", "serialized", "packaged", "unpacked", "reconciling", "populating", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Lifecycle tracks one operation through its stages. Transitions only go
// to the next stage.
type Lifecycle struct {
	state  State
	logger *zap.Logger
}

// NewLifecycle starts at from. Pack starts at Building; unpack at
// Packaged, since it begins with an existing package.
func NewLifecycle(from State, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{state: from, logger: logger}
}

func (l *Lifecycle) State() State { return l.state }

// Advance moves to next. Anything but the following stage fails with
// apperrors.ErrInvalidTransition and leaves the state unchanged.
func (l *Lifecycle) Advance(next State) error {
	if next != l.state+1 || next > Done {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, l.state, next)
	}
	l.logger.Debug("lifecycle", zap.Stringer("from", l.state), zap.Stringer("to", next))
	l.state = next
	return nil
}
