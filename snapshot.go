package axebergos

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/viant/afs/file"
	"gopkg.in/yaml.v3"

	"github.com/axeberg/axebergos/runtime/object"
	"github.com/axeberg/axebergos/runtime/proc"
	"github.com/axeberg/axebergos/stats"
)

// Snapshot is a point-in-time view of kernel state.
type Snapshot struct {
	BootID    string         `json:"bootId" yaml:"bootId"`
	Uptime    string         `json:"uptime" yaml:"uptime"`
	Stats     stats.Snapshot `json:"stats" yaml:"stats"`
	Processes []proc.Info    `json:"processes" yaml:"processes"`
	Objects   []object.Info  `json:"objects" yaml:"objects"`
	Timers    int            `json:"timers" yaml:"timers"`
	// Tasks counts tasks bound to each live pid.
	Tasks map[proc.Pid]int `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// Snapshot captures the current kernel state.
func (k *Kernel) Snapshot() *Snapshot {
	ret := &Snapshot{
		BootID:    k.bootID,
		Uptime:    k.clock.Now().String(),
		Stats:     k.stats.Snapshot(),
		Processes: k.procs.List(),
		Objects:   k.objects.List(),
		Timers:    k.timers.Len(),
		Tasks:     make(map[proc.Pid]int),
	}
	k.mu.Lock()
	for pid, tasks := range k.bindings {
		ret.Tasks[pid] = len(tasks)
	}
	k.mu.Unlock()
	sort.Slice(ret.Objects, func(i, j int) bool { return ret.Objects[i].Primary < ret.Objects[j].Primary })
	return ret
}

// DumpSnapshot writes the snapshot as YAML to URL.
func (k *Kernel) DumpSnapshot(ctx context.Context, URL string) error {
	snapshot := k.Snapshot()
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err = k.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot %v: %w", URL, err)
	}
	k.logger.Debug("snapshot", "url", URL, "processes", len(snapshot.Processes))
	return nil
}
