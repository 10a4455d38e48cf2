package rollingdb

import (
	"errors"
	"fmt"
)

var (
	ErrRootRequired = errors.New("rollingdb: root directory is required")
	ErrClosed       = errors.New("rollingdb: store closed")
	// ErrInvalidIndex marks an index whose contents violate current != old.
	ErrInvalidIndex = errors.New("rollingdb: invalid index")
)

// IndexError reports a persistent index that could not be read, parsed or
// written. It is fatal: the store refuses to run with unknown generations.
type IndexError struct {
	Path string
	Op   string // "load", "decode", "sync"
	Err  error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("rollingdb: index %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// OpenError reports a generation that could not be opened or created.
type OpenError struct {
	Name     string
	Dir      string
	OpenErr  error
	CloseErr error // set when cleaning up a half-opened pair also failed
}

func (e *OpenError) Error() string {
	switch {
	case e.OpenErr != nil && e.CloseErr != nil:
		return fmt.Sprintf("rollingdb: open generation %s (%s): %v; cleanup: %v",
			e.Name, e.Dir, e.OpenErr, e.CloseErr)
	case e.OpenErr != nil:
		return fmt.Sprintf("rollingdb: open generation %s (%s): %v", e.Name, e.Dir, e.OpenErr)
	default:
		return fmt.Sprintf("rollingdb: open generation %s (%s): unknown error", e.Name, e.Dir)
	}
}

func (e *OpenError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.OpenErr != nil {
		errs = append(errs, e.OpenErr)
	}
	if e.CloseErr != nil {
		errs = append(errs, e.CloseErr)
	}
	return errs
}
