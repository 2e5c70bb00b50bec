package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/stats"
)

type resource struct {
	finalized int
}

func (r *resource) Kind() object.Kind { return "resource" }

func (r *resource) Finalize() { r.finalized++ }

func newTables(t *testing.T, options ...Option) (*Table, *object.Table) {
	t.Helper()
	objects := object.New()
	return New(objects, options...), objects
}

func TestTable_SpawnExitReap(t *testing.T) {
	table, _ := newTables(t)

	q, err := table.Spawn(Init, SpawnOptions{Name: "q"})
	require.NoError(t, err)
	p, err := table.Spawn(q, SpawnOptions{Name: "p"})
	require.NoError(t, err)

	info, err := table.Get(p)
	require.NoError(t, err)
	assert.Equal(t, q, info.Parent)
	assert.Equal(t, RunningState(), info.State)

	require.NoError(t, table.Exit(p, 7))
	state, err := table.State(p)
	require.NoError(t, err)
	assert.Equal(t, ZombieState(7), state)

	code, err := table.Reap(q, p)
	require.NoError(t, err)
	assert.Equal(t, 7, code)

	_, err = table.State(p)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	_, err = table.Reap(q, p)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestTable_SpawnParentChecks(t *testing.T) {
	table, _ := newTables(t, WithMaxProcesses(2))

	_, err := table.Spawn(42, SpawnOptions{})
	assert.ErrorIs(t, err, ErrNoSuchProcess)

	a, err := table.Spawn(Init, SpawnOptions{})
	require.NoError(t, err)
	require.NoError(t, table.Exit(a, 0))
	_, err = table.Spawn(a, SpawnOptions{})
	assert.ErrorIs(t, err, ErrNoSuchProcess)

	_, err = table.Spawn(Init, SpawnOptions{})
	require.NoError(t, err)
	_, err = table.Spawn(Init, SpawnOptions{})
	assert.ErrorIs(t, err, ErrProcessLimit)
}

func TestTable_Transitions(t *testing.T) {
	testCases := []struct {
		description string
		setup       func(table *Table, pid Pid) error
		to          State
		expectErr   bool
	}{
		{description: "running to sleeping", to: SleepingState()},
		{description: "running to blocked", to: BlockedState(9)},
		{description: "running to stopped", to: StoppedState()},
		{description: "running to running", to: RunningState(), expectErr: true},
		{description: "sleeping to running", setup: func(table *Table, pid Pid) error { return table.Sleep(pid) }, to: RunningState()},
		{description: "sleeping to stopped", setup: func(table *Table, pid Pid) error { return table.Sleep(pid) }, to: StoppedState(), expectErr: true},
		{description: "sleeping to zombie", setup: func(table *Table, pid Pid) error { return table.Sleep(pid) }, to: ZombieState(1), expectErr: true},
		{description: "blocked to sleeping", setup: func(table *Table, pid Pid) error { return table.Block(pid, 9) }, to: SleepingState(), expectErr: true},
		{description: "stopped to zombie", setup: func(table *Table, pid Pid) error { return table.Stop(pid) }, to: ZombieState(3)},
		{description: "stopped to sleeping", setup: func(table *Table, pid Pid) error { return table.Stop(pid) }, to: SleepingState(), expectErr: true},
		{description: "zombie to running", setup: func(table *Table, pid Pid) error { return table.Exit(pid, 0) }, to: RunningState(), expectErr: true},
		{description: "zombie to zombie", setup: func(table *Table, pid Pid) error { return table.Exit(pid, 0) }, to: ZombieState(2), expectErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			table, _ := newTables(t)
			pid, err := table.Spawn(Init, SpawnOptions{})
			require.NoError(t, err)
			if testCase.setup != nil {
				require.NoError(t, testCase.setup(table, pid))
			}
			before, _ := table.State(pid)
			err = table.Transition(pid, testCase.to)
			after, _ := table.State(pid)
			if testCase.expectErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, before, after)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.to, after)
		})
	}
}

func TestTable_Terminate(t *testing.T) {
	testCases := []struct {
		description string
		setup       func(table *Table, pid Pid) error
		expectKinds []Kind
	}{
		{description: "running", expectKinds: []Kind{Zombie}},
		{description: "sleeping", setup: func(table *Table, pid Pid) error { return table.Sleep(pid) }, expectKinds: []Kind{Running, Zombie}},
		{description: "blocked", setup: func(table *Table, pid Pid) error { return table.Block(pid, 5) }, expectKinds: []Kind{Running, Zombie}},
		{description: "stopped", setup: func(table *Table, pid Pid) error { return table.Stop(pid) }, expectKinds: []Kind{Zombie}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			var observed []Kind
			table, _ := newTables(t, WithListener(func(e Event) {
				if e.Type == EventTransition {
					observed = append(observed, e.To.Kind)
				}
			}))
			pid, err := table.Spawn(Init, SpawnOptions{})
			require.NoError(t, err)
			if testCase.setup != nil {
				require.NoError(t, testCase.setup(table, pid))
			}
			observed = nil
			require.NoError(t, table.Terminate(pid, 137))
			assert.Equal(t, testCase.expectKinds, observed)
			state, _ := table.State(pid)
			assert.Equal(t, ZombieState(137), state)
			assert.ErrorIs(t, table.Terminate(pid, 1), ErrInvalidTransition)
		})
	}
}

func TestTable_ExitReleasesHandles(t *testing.T) {
	s := stats.New("test")
	table, objects := newTables(t, WithStats(s))
	shared := &resource{}
	private := &resource{}

	hShared, err := objects.Insert(shared)
	require.NoError(t, err)
	hPrivate, err := objects.Insert(private)
	require.NoError(t, err)

	parent, err := table.Spawn(Init, SpawnOptions{})
	require.NoError(t, err)
	_, err = table.Attach(parent, hShared)
	require.NoError(t, err)

	child, err := table.Spawn(parent, SpawnOptions{Inherit: []object.Handle{hShared}})
	require.NoError(t, err)
	refs, _ := objects.Refcount(hShared)
	assert.Equal(t, 2, refs)

	fd, err := table.Attach(child, hPrivate)
	require.NoError(t, err)
	assert.Equal(t, FD(1), fd)

	require.NoError(t, table.Exit(child, 0))
	refs, _ = objects.Refcount(hShared)
	assert.Equal(t, 1, refs)
	assert.Equal(t, 0, shared.finalized)
	assert.Equal(t, 1, private.finalized)
	_, ok := objects.Get(hPrivate)
	assert.False(t, ok)

	info, err := table.Get(child)
	require.NoError(t, err)
	assert.Empty(t, info.FDs)

	require.NoError(t, table.Exit(parent, 0))
	assert.Equal(t, 1, shared.finalized)
	assert.Equal(t, 0, objects.Len())

	snapshot := s.Snapshot()
	assert.Equal(t, 2, snapshot.ProcessesSpawned)
	assert.Equal(t, 2, snapshot.ProcessesExited)
}

func TestTable_SpawnInheritFailure(t *testing.T) {
	table, objects := newTables(t)
	r := &resource{}
	h, err := objects.Insert(r)
	require.NoError(t, err)

	_, err = table.Spawn(Init, SpawnOptions{Inherit: []object.Handle{h, object.Handle(999)}})
	assert.ErrorIs(t, err, object.ErrInvalidHandle)
	refs, _ := objects.Refcount(h)
	assert.Equal(t, 1, refs)
	assert.Equal(t, 0, table.Len())
}

func TestTable_ReparentToInit(t *testing.T) {
	var reparented []Pid
	table, _ := newTables(t, WithListener(func(e Event) {
		if e.Type == EventReparent {
			reparented = append(reparented, e.Pid)
		}
	}))
	parent, _ := table.Spawn(Init, SpawnOptions{})
	a, _ := table.Spawn(parent, SpawnOptions{})
	b, _ := table.Spawn(parent, SpawnOptions{})
	require.NoError(t, table.Exit(b, 4))

	require.NoError(t, table.Exit(parent, 0))
	assert.Equal(t, []Pid{a, b}, reparented)
	assert.Empty(t, table.Children(parent))
	assert.Equal(t, []Pid{parent, a, b}, table.Children(Init))
	assert.Equal(t, []Pid{parent, b}, table.Zombies(Init))

	_, err := table.Reap(parent, b)
	assert.ErrorIs(t, err, ErrNotChild)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	code, err := table.Reap(Init, b)
	require.NoError(t, err)
	assert.Equal(t, 4, code)
}

func TestTable_ReapRunning(t *testing.T) {
	table, _ := newTables(t)
	parent, _ := table.Spawn(Init, SpawnOptions{})
	child, _ := table.Spawn(parent, SpawnOptions{})
	_, err := table.Reap(parent, child)
	assert.ErrorIs(t, err, ErrNoSuchProcess)
	assert.True(t, table.Exists(child))
}

func TestTable_ZombieChild(t *testing.T) {
	table, _ := newTables(t)
	parent, _ := table.Spawn(Init, SpawnOptions{})

	_, _, err := table.ZombieChild(parent, AnyChild)
	assert.ErrorIs(t, err, ErrNoChild)

	a, _ := table.Spawn(parent, SpawnOptions{})
	b, _ := table.Spawn(parent, SpawnOptions{})

	_, found, err := table.ZombieChild(parent, AnyChild)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, table.Exit(b, 2))
	pid, found, err := table.ZombieChild(parent, AnyChild)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, b, pid)

	_, found, err = table.ZombieChild(parent, a)
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = table.ZombieChild(a, b)
	assert.ErrorIs(t, err, ErrNoChild)
}

func TestTable_Descriptors(t *testing.T) {
	table, objects := newTables(t)
	r := &resource{}
	h, err := objects.Insert(r)
	require.NoError(t, err)
	pid, _ := table.Spawn(Init, SpawnOptions{})

	fd, err := table.Attach(pid, h)
	require.NoError(t, err)
	assert.Equal(t, FD(0), fd)

	dup, err := table.Dup(pid, fd)
	require.NoError(t, err)
	assert.Equal(t, FD(1), dup)
	refs, _ := objects.Refcount(h)
	assert.Equal(t, 2, refs)

	got, err := table.Lookup(pid, dup)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	require.NoError(t, table.Close(pid, fd))
	refs, _ = objects.Refcount(h)
	assert.Equal(t, 1, refs)
	_, err = table.Lookup(pid, fd)
	assert.ErrorIs(t, err, ErrBadFD)
	assert.ErrorIs(t, table.Close(pid, fd), ErrBadFD)

	again, err := table.Dup(pid, dup)
	require.NoError(t, err)
	assert.Equal(t, FD(0), again)

	require.NoError(t, table.Exit(pid, 0))
	assert.Equal(t, 1, r.finalized)
	_, err = table.Attach(pid, h)
	assert.ErrorIs(t, err, ErrExited)
}
