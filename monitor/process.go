package monitor

import (
	"os"
	"regexp"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessProbe samples system CPU usage and the thread count of this
// process, plus every process whose command line matches a pattern.
type ProcessProbe struct {
	pid     int32
	pattern *regexp.Regexp
}

func NewProcessProbe(pattern string) (*ProcessProbe, error) {
	p := &ProcessProbe{pid: int32(os.Getpid())}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "compiling process pattern %q", pattern)
		}
		p.pattern = re
	}
	return p, nil
}

func (p *ProcessProbe) Sample() (float64, map[int32]int32, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, nil, errors.Wrap(err, "reading cpu usage")
	}
	var usage float64
	if len(percents) > 0 {
		usage = percents[0]
	}

	pids, err := p.pids()
	if err != nil {
		return 0, nil, err
	}
	threads := make(map[int32]int32, len(pids))
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		// The process may exit between listing and sampling.
		n, err := proc.NumThreads()
		if err != nil {
			continue
		}
		threads[pid] = n
	}
	return usage, threads, nil
}

func (p *ProcessProbe) pids() ([]int32, error) {
	if p.pattern == nil {
		return []int32{p.pid}, nil
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "listing processes")
	}
	pids := []int32{p.pid}
	for _, proc := range procs {
		if proc.Pid == p.pid {
			continue
		}
		cmdline, err := proc.Cmdline()
		if err != nil {
			continue
		}
		if p.pattern.MatchString(cmdline) {
			pids = append(pids, proc.Pid)
		}
	}
	return pids, nil
}
