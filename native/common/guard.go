package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// PauseFunc adapts a plain function to PauseView.
type PauseFunc func(module string) bool

func (f PauseFunc) IsPaused(module string) bool {
	if f == nil {
		return false
	}
	return f(module)
}

// AnyPaused reports a module as paused when any of its views does.
type AnyPaused []PauseView

func (views AnyPaused) IsPaused(module string) bool {
	for _, v := range views {
		if v != nil && v.IsPaused(module) {
			return true
		}
	}
	return false
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
