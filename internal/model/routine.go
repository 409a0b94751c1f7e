package model

import (
	"fmt"
	"sync"
)

// Routine is a model linked into the binary instead of launched as a
// subprocess. It reads its inputs from dir and writes its outputs
// there, exactly as an external executable would.
type Routine func(dir string) error

var (
	routineMu sync.RWMutex
	routines  = make(map[string]Routine)
)

// RegisterRoutine makes an in-process model available under name. A
// ModelExecutable setting of "name()" selects it. Registration happens
// in init functions or before the run starts.
func RegisterRoutine(name string, fn Routine) {
	routineMu.Lock()
	defer routineMu.Unlock()
	routines[name] = fn
}

func lookupRoutine(name string) (Routine, error) {
	routineMu.RLock()
	defer routineMu.RUnlock()
	fn, ok := routines[name]
	if !ok {
		return nil, fmt.Errorf("no registered routine %q", name)
	}
	return fn, nil
}
