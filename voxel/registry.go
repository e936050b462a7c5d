package voxel

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	ErrUnknownID       = errors.New("voxel: unknown global id")
	ErrCorruptRegistry = errors.New("voxel: corrupt block state registry")
	ErrRegistryFull    = errors.New("voxel: block state registry is full")
	ErrRegistryBroken  = errors.New("voxel: block state registry failed to persist an entry")
	ErrUnstorableState = errors.New("voxel: block state cannot be stored in the registry log")
)

// storable reports whether state fits on one non-empty line of the log.
func storable(state BlockState) bool {
	return state != "" && !strings.ContainsAny(string(state), "\r\n")
}

// Registry is the append-only bijection between block states and global ids,
// backed by a line-oriented log where line n holds the state with id n.
//
// All mutation goes through a single mutex, and every new entry is written and
// synced to the log before GetOrCreateID returns. After a failed append the
// registry refuses further work so memory and disk never diverge.
type Registry struct {
	mu     sync.Mutex
	file   *os.File
	states []BlockState
	ids    map[BlockState]GlobalID
	err    error
}

// OpenRegistry loads the registry log at path, creating it if it does not
// exist. A log that is truncated mid-line, holds an empty line, repeats a state
// or is not UTF-8 is reported as ErrCorruptRegistry.
func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCorruptRegistry, err.Error())
	}

	states, err := parseRegistryLog(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrCorruptRegistry, path, err.Error())
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	reg := &Registry{
		file:   file,
		states: states,
		ids:    make(map[BlockState]GlobalID, len(states)),
	}
	for i, state := range states {
		reg.ids[state] = GlobalID(i)
	}
	return reg, nil
}

func parseRegistryLog(data []byte) ([]BlockState, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[len(data)-1] != '\n' {
		return nil, errors.New("last line is not terminated")
	}
	if !utf8.Valid(data) {
		return nil, errors.New("log is not valid UTF-8")
	}

	lines := bytes.Split(data[:len(data)-1], []byte{'\n'})
	if len(lines) > math.MaxUint16+1 {
		return nil, fmt.Errorf("%d entries exceed the 16-bit id space", len(lines))
	}
	states := make([]BlockState, 0, len(lines))
	seen := make(map[string]int, len(lines))
	for i, line := range lines {
		state := strings.TrimSuffix(string(line), "\r")
		if state == "" {
			return nil, fmt.Errorf("line %d is empty", i+1)
		}
		if prev, dup := seen[state]; dup {
			return nil, fmt.Errorf("line %d repeats line %d (%s)", i+1, prev+1, state)
		}
		seen[state] = i
		states = append(states, BlockState(state))
	}
	return states, nil
}

// GetOrCreateID returns the id of state, assigning the next free id and
// appending it to the log if the state has not been seen before.
func (r *Registry) GetOrCreateID(state BlockState) (GlobalID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return 0, r.err
	}
	if id, ok := r.ids[state]; ok {
		return id, nil
	}
	if !storable(state) {
		return 0, fmt.Errorf("%w: %q", ErrUnstorableState, state)
	}
	if len(r.states) > math.MaxUint16 {
		return 0, ErrRegistryFull
	}

	if _, err := r.file.WriteString(string(state) + "\n"); err != nil {
		r.err = fmt.Errorf("%w: %s", ErrRegistryBroken, err.Error())
		return 0, r.err
	}
	if err := r.file.Sync(); err != nil {
		r.err = fmt.Errorf("%w: %s", ErrRegistryBroken, err.Error())
		return 0, r.err
	}

	id := GlobalID(len(r.states))
	r.states = append(r.states, state)
	r.ids[state] = id
	return id, nil
}

// Resolve returns the block state assigned to id.
func (r *Registry) Resolve(id GlobalID) (BlockState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.states) {
		return "", fmt.Errorf("%w: %d (registry holds %d states)", ErrUnknownID, id, len(r.states))
	}
	return r.states[id], nil
}

// Len returns the number of assigned ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

// States returns a copy of every assigned state in id order.
func (r *Registry) States() []BlockState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BlockState(nil), r.states...)
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if r.err == nil {
		r.err = os.ErrClosed
	}
	return err
}
