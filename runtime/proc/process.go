package proc

import (
	"fmt"
	"maps"
	"slices"

	"github.com/axeberg/axebergos/runtime/object"
)

// FD is a per-process descriptor naming an object handle.
type FD int

func (fd FD) String() string {
	return fmt.Sprintf("fd%d", int(fd))
}

type process struct {
	pid    Pid
	parent Pid
	name   string
	state  State
	fds    map[FD]object.Handle
}

func (p *process) lowestFreeFD() FD {
	fd := FD(0)
	for {
		if _, taken := p.fds[fd]; !taken {
			return fd
		}
		fd++
	}
}

// takeHandles empties the descriptor table, returning handles in fd order.
func (p *process) takeHandles() []object.Handle {
	if len(p.fds) == 0 {
		return nil
	}
	fds := make([]FD, 0, len(p.fds))
	for fd := range p.fds {
		fds = append(fds, fd)
	}
	slices.Sort(fds)
	handles := make([]object.Handle, 0, len(fds))
	for _, fd := range fds {
		handles = append(handles, p.fds[fd])
	}
	p.fds = make(map[FD]object.Handle)
	return handles
}

func (p *process) info() Info {
	return Info{
		Pid:    p.pid,
		Parent: p.parent,
		Name:   p.name,
		State:  p.state,
		FDs:    maps.Clone(p.fds),
	}
}

// Info is a point-in-time copy of a process record.
type Info struct {
	Pid    Pid                  `json:"pid" yaml:"pid"`
	Parent Pid                  `json:"parent" yaml:"parent"`
	Name   string               `json:"name,omitempty" yaml:"name,omitempty"`
	State  State                `json:"state" yaml:"state"`
	FDs    map[FD]object.Handle `json:"fds,omitempty" yaml:"fds,omitempty"`
}

// SpawnOptions describes a new process.
type SpawnOptions struct {
	Name string
	// Inherit lists handles the child receives as descriptors 0..n-1. Each
	// one is retained on behalf of the child.
	Inherit []object.Handle
}

// EventType classifies table events.
type EventType int

const (
	EventSpawn EventType = iota
	EventTransition
	EventReparent
	EventReap
)

func (e EventType) String() string {
	switch e {
	case EventSpawn:
		return "spawn"
	case EventTransition:
		return "transition"
	case EventReparent:
		return "reparent"
	case EventReap:
		return "reap"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Event describes a committed change to the table.
type Event struct {
	Type   EventType
	Pid    Pid
	Parent Pid
	From   State
	To     State
}

// Listener observes committed table events.
type Listener func(Event)

// Objects is the part of the object table used to account for descriptors.
type Objects interface {
	Retain(h object.Handle) error
	Release(h object.Handle) error
}
