package proc

import "fmt"

// Pid identifies a process. It stays valid while the process is a zombie.
type Pid int

const (
	// Init is the implicit root process. It has no record and adopts
	// orphans.
	Init Pid = 0
	// AnyChild matches every child in wait-style lookups.
	AnyChild Pid = -1
)

func (p Pid) String() string {
	if p == Init {
		return "init"
	}
	return fmt.Sprintf("pid-%d", int(p))
}

// Kind is the lifecycle state without its payload.
type Kind int

const (
	Running Kind = iota
	Sleeping
	Blocked
	Stopped
	Zombie
)

var kindNames = [...]string{"running", "sleeping", "blocked", "stopped", "zombie"}

func (k Kind) String() string {
	if k < Running || k > Zombie {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalYAML encodes the kind by name.
func (k Kind) MarshalYAML() (interface{}, error) {
	return k.String(), nil
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// State is a process lifecycle state. Awaited is meaningful for Blocked and
// ExitCode for Zombie.
type State struct {
	Kind     Kind `json:"kind" yaml:"kind"`
	Awaited  Pid  `json:"awaited,omitempty" yaml:"awaited,omitempty"`
	ExitCode int  `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
}

// RunningState returns the Running state.
func RunningState() State { return State{Kind: Running} }

// SleepingState returns the Sleeping state.
func SleepingState() State { return State{Kind: Sleeping} }

// BlockedState returns the state of a process waiting on pid.
func BlockedState(on Pid) State { return State{Kind: Blocked, Awaited: on} }

// StoppedState returns the Stopped state.
func StoppedState() State { return State{Kind: Stopped} }

// ZombieState returns the terminal state carrying an exit code.
func ZombieState(code int) State { return State{Kind: Zombie, ExitCode: code} }

// Is reports whether the state is of kind k.
func (s State) Is(k Kind) bool { return s.Kind == k }

func (s State) String() string {
	switch s.Kind {
	case Blocked:
		return fmt.Sprintf("blocked(%v)", s.Awaited)
	case Zombie:
		return fmt.Sprintf("zombie(%d)", s.ExitCode)
	}
	return s.Kind.String()
}

type edge struct {
	from Kind
	to   Kind
}

var transitions = map[edge]bool{
	{Running, Sleeping}: true,
	{Running, Blocked}:  true,
	{Running, Stopped}:  true,
	{Running, Zombie}:   true,
	{Sleeping, Running}: true,
	{Blocked, Running}:  true,
	{Stopped, Running}:  true,
	{Stopped, Zombie}:   true,
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	return transitions[edge{from.Kind, to.Kind}]
}
