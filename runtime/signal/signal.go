package signal

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

var (
	// ErrInvalidSignal is returned for signal numbers outside 1..MaxSignal.
	ErrInvalidSignal = errors.New("invalid signal")
	// ErrUncatchable is returned when trying to catch or ignore Kill or Stop.
	ErrUncatchable = errors.New("signal cannot be caught or ignored")
)

// Signal is a signal number in 1..MaxSignal.
type Signal int

const (
	Hup  Signal = 1
	Int  Signal = 2
	Quit Signal = 3
	Kill Signal = 9
	Usr1 Signal = 10
	Usr2 Signal = 12
	Pipe Signal = 13
	Alrm Signal = 14
	Term Signal = 15
	Chld Signal = 17
	Cont Signal = 18
	Stop Signal = 19
	Tstp Signal = 20

	MaxSignal Signal = 64
)

var names = map[Signal]string{
	Hup:  "HUP",
	Int:  "INT",
	Quit: "QUIT",
	Kill: "KILL",
	Usr1: "USR1",
	Usr2: "USR2",
	Pipe: "PIPE",
	Alrm: "ALRM",
	Term: "TERM",
	Chld: "CHLD",
	Cont: "CONT",
	Stop: "STOP",
	Tstp: "TSTP",
}

func (s Signal) String() string {
	if name, ok := names[s]; ok {
		return "SIG" + name
	}
	return fmt.Sprintf("SIG%d", int(s))
}

// Valid reports whether s is in range.
func (s Signal) Valid() bool {
	return s >= 1 && s <= MaxSignal
}

// Catchable reports whether s may be masked, handled or ignored.
func (s Signal) Catchable() bool {
	return s != Kill && s != Stop
}

// Parse accepts "TERM", "SIGTERM" or a decimal number.
func Parse(text string) (Signal, error) {
	name := strings.TrimPrefix(strings.ToUpper(text), "SIG")
	for sig, n := range names {
		if n == name {
			return sig, nil
		}
	}
	if n, err := strconv.Atoi(name); err == nil && Signal(n).Valid() {
		return Signal(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSignal, text)
}

// Action is the effect of a signal without a handler.
type Action int

const (
	ActionIgnore Action = iota
	ActionTerminate
	ActionStop
	ActionContinue
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionTerminate:
		return "terminate"
	case ActionStop:
		return "stop"
	case ActionContinue:
		return "continue"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// DefaultAction returns the action taken when s has no handler.
func DefaultAction(s Signal) Action {
	switch s {
	case Hup, Int, Quit, Kill, Usr1, Usr2, Pipe, Alrm, Term:
		return ActionTerminate
	case Stop, Tstp:
		return ActionStop
	case Cont:
		return ActionContinue
	}
	return ActionIgnore
}

// ExitCode is the exit code of a process terminated by s.
func ExitCode(s Signal) int {
	return 128 + int(s)
}

// Set is a set of signals.
type Set uint64

// NewSet returns a set holding sigs; invalid numbers are skipped.
func NewSet(sigs ...Signal) Set {
	var s Set
	for _, sig := range sigs {
		s = s.Add(sig)
	}
	return s
}

func bit(sig Signal) Set {
	return Set(1) << uint(sig-1)
}

// Add returns s with sig added.
func (s Set) Add(sig Signal) Set {
	if !sig.Valid() {
		return s
	}
	return s | bit(sig)
}

// Remove returns s without sig.
func (s Set) Remove(sig Signal) Set {
	if !sig.Valid() {
		return s
	}
	return s &^ bit(sig)
}

// Has reports whether sig is in s.
func (s Set) Has(sig Signal) bool {
	return sig.Valid() && s&bit(sig) != 0
}

// Len returns the number of signals in s.
func (s Set) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Signals lists the members of s in ascending order.
func (s Set) Signals() []Signal {
	var out []Signal
	for rest := uint64(s); rest != 0; rest &= rest - 1 {
		out = append(out, Signal(bits.TrailingZeros64(rest)+1))
	}
	return out
}

func (s Set) String() string {
	sigs := s.Signals()
	parts := make([]string, len(sigs))
	for i, sig := range sigs {
		parts[i] = sig.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
