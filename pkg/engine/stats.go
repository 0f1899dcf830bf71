package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cgroupsstats "github.com/containerd/cgroups/stats/v1"
	"github.com/containerd/typeurl/v2"
)

// Stats takes a single non-streaming stats sample of the container's
// task, decoding the cgroup v1 metrics typeurl payload containerd's
// task.Metrics() returns. Callers sample twice (pre/post) and apply
// the pressure-calculation formulas themselves; this keeps Engine free
// of any notion of "previous sample".
func (e *ContainerdEngine) Stats(ctx context.Context, id string) (StatsSample, error) {
	ctx = e.ctx(ctx)

	c, err := e.client.LoadContainer(ctx, id)
	if err != nil {
		return StatsSample{}, fmt.Errorf("load container %s: %w", id, err)
	}

	task, err := c.Task(ctx, nil)
	if err != nil {
		return StatsSample{}, fmt.Errorf("load task %s: %w", id, err)
	}

	metric, err := task.Metrics(ctx)
	if err != nil {
		return StatsSample{}, fmt.Errorf("read metrics %s: %w", id, err)
	}

	data, err := typeurl.UnmarshalAny(metric.Data)
	if err != nil {
		return StatsSample{}, fmt.Errorf("decode metrics %s: %w", id, err)
	}

	stats, ok := data.(*cgroupsstats.Metrics)
	if !ok {
		return StatsSample{}, fmt.Errorf("unexpected metrics type for %s", id)
	}

	sample := StatsSample{SampledAt: time.Now()}
	if cpu := stats.GetCpu(); cpu != nil {
		if usage := cpu.GetUsage(); usage != nil {
			sample.CPUTotalUsage = usage.GetTotal()
			sample.PerCPUUsage = usage.GetPerCpu()
		}
	}
	if memory := stats.GetMemory(); memory != nil {
		sample.MemoryUsage = memory.GetUsage().GetUsage()
		sample.MemoryLimit = memory.GetUsage().GetLimit()
	}
	sample.OnlineCPUs = len(sample.PerCPUUsage)

	sysUsage, err := readSystemCPUUsage()
	if err == nil {
		sample.CPUSystemUsage = sysUsage
	}

	return sample, nil
}

// readSystemCPUUsage reads the host's total CPU time in the same unit
// as cgroup CPU accounting (nanoseconds), summing /proc/stat's
// aggregate "cpu" line. Mirrors the technique used by container stats
// CLIs that compute CPU percent from cgroup usage deltas.
func readSystemCPUUsage() (uint64, error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		var total uint64
		for _, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				continue
			}
			total += v
		}
		// /proc/stat reports jiffies (USER_HZ, typically 100/s);
		// convert to nanoseconds to match cgroup usage units.
		const nsPerJiffy = uint64(1e9 / 100)
		return total * nsPerJiffy, nil
	}
	return 0, fmt.Errorf("cpu line not found in /proc/stat")
}
