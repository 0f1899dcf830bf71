package engine

// Pressure is the CPU/memory load derived from a pair of non-streaming
// stats samples.
type Pressure struct {
	CPUPercent    float64
	MemoryPercent float64
}

// CalculatePressure implements the pressure-calculation formulas: CPU
// percent from the delta between two samples scaled by the number of
// online CPUs, memory percent from the latest sample's usage/limit
// ratio. An unknown online-CPU count falls back to the number of
// per-CPU usage entries, then to 1. CPU percent is zero for
// non-positive deltas; memory percent is zero when there is no memory
// limit.
func CalculatePressure(pre, cur StatsSample) Pressure {
	var p Pressure

	cpuDelta := int64(cur.CPUTotalUsage) - int64(pre.CPUTotalUsage)
	systemDelta := int64(cur.CPUSystemUsage) - int64(pre.CPUSystemUsage)
	onlineCPUs := cur.OnlineCPUs
	if onlineCPUs <= 0 {
		onlineCPUs = len(cur.PerCPUUsage)
	}
	if onlineCPUs <= 0 {
		onlineCPUs = 1
	}

	if cpuDelta > 0 && systemDelta > 0 && onlineCPUs > 0 {
		p.CPUPercent = (float64(cpuDelta) / float64(systemDelta)) * float64(onlineCPUs) * 100
	}

	if cur.MemoryLimit > 0 {
		p.MemoryPercent = (float64(cur.MemoryUsage) / float64(cur.MemoryLimit)) * 100
	}

	return p
}
