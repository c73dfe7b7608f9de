package agent

import (
	"context"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/jsamuel1/agi-diy/internal/model"
)

// discoveryTimeout bounds a single scan of the process table.
const discoveryTimeout = 5 * time.Second

// ProcessInfo is one entry of the OS process table.
type ProcessInfo struct {
	PID  int32
	Args []string
}

// ProcessLister lists running processes with their command lines.
type ProcessLister interface {
	Processes(ctx context.Context) ([]ProcessInfo, error)
}

type systemLister struct{}

func (systemLister) Processes(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) == 0 {
			// exited or not ours to inspect
			continue
		}
		infos = append(infos, ProcessInfo{PID: p.Pid, Args: args})
	}
	return infos, nil
}

// DiscoverExternal finds agent CLI sessions running on this machine that
// the supervisor did not launch. Any inspection failure yields an empty list.
func (s *Supervisor) DiscoverExternal(ctx context.Context) []model.DiscoveredAgent {
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	procs, err := s.lister.Processes(ctx)
	if err != nil {
		s.logger.Debug("process discovery failed", "error", err)
		return []model.DiscoveredAgent{}
	}

	own := s.ownPIDs()
	found := []model.DiscoveredAgent{}
	for _, p := range procs {
		if _, ok := own[p.PID]; ok {
			continue
		}
		if d, ok := parseAgentProcess(s.opts.Command, p); ok {
			found = append(found, d)
		}
	}
	return found
}

func (s *Supervisor) ownPIDs() map[int32]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pids := make(map[int32]struct{}, len(s.agents))
	for _, a := range s.agents {
		if !a.Exited() {
			pids[int32(a.Process.PID())] = struct{}{}
		}
	}
	return pids
}

// parseAgentProcess recognises "<command> acp [--agent NAME] [--cwd DIR]".
func parseAgentProcess(command string, p ProcessInfo) (model.DiscoveredAgent, bool) {
	name := filepath.Base(command)
	at := -1
	for i, arg := range p.Args {
		if filepath.Base(arg) == name {
			at = i
			break
		}
	}
	if at < 0 || !slices.Contains(p.Args[at+1:], "acp") {
		return model.DiscoveredAgent{}, false
	}

	pid := strconv.Itoa(int(p.PID))
	d := model.DiscoveredAgent{
		ID:         model.VirtualPeerPrefix + pid,
		PID:        pid,
		Agent:      model.DefaultProfile,
		Discovered: true,
	}
	if v, ok := flagValue(p.Args, "--agent"); ok {
		d.Agent = v
	}
	if v, ok := flagValue(p.Args, "--cwd"); ok {
		d.Cwd = v
	}
	return d, true
}

func flagValue(args []string, flag string) (string, bool) {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1], true
		}
		if v, ok := strings.CutPrefix(arg, flag+"="); ok {
			return v, true
		}
	}
	return "", false
}
