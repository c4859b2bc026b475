package ime

import (
	"sync"
	"sync/atomic"
)

// ModeStore persists the input mode between runs.
type ModeStore interface {
	LoadMode() (InputMode, error)
	SaveMode(mode InputMode) error
}

// ModeContext is the process-wide state shared by every session: the
// current input mode and the lock serializing orchestration steps.
type ModeContext struct {
	step  sync.Mutex
	mode  atomic.Int32
	store ModeStore
}

// NewModeContext creates a context starting in mode. When store is not nil
// and holds a saved mode, the saved mode wins.
func NewModeContext(mode InputMode, store ModeStore) *ModeContext {
	c := &ModeContext{store: store}
	if store != nil {
		if saved, err := store.LoadMode(); err == nil {
			mode = saved
		}
	}
	c.mode.Store(int32(mode))
	return c
}

// Mode returns the current input mode.
func (c *ModeContext) Mode() InputMode {
	return InputMode(c.mode.Load())
}

// setMode changes and persists the mode. It is only called while the step
// lock is held.
func (c *ModeContext) setMode(mode InputMode) error {
	c.mode.Store(int32(mode))
	if c.store == nil {
		return nil
	}
	return c.store.SaveMode(mode)
}

// acquire takes the step lock without waiting.
func (c *ModeContext) acquire() error {
	if !c.step.TryLock() {
		return ErrBusy
	}
	return nil
}

func (c *ModeContext) release() {
	c.step.Unlock()
}
