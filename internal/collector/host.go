package collector

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// HostSample is a synchronous, non-blocking read of host-level metrics taken
// at the start of every cycle.
type HostSample struct {
	CPUPct    float64
	RAMPct    float64
	RAMUsedMB float64
	DiskPct   float64
	UptimeSec int64
}

// HostCollector samples CPU, RAM and disk from /proc and statfs. CPU usage
// is the delta between consecutive samples, so the first tick reports 0.
type HostCollector struct {
	prevCPU *cpuSample
}

type cpuSample struct {
	total uint64
	idle  uint64
}

func NewHostCollector() *HostCollector { return &HostCollector{} }

func (h *HostCollector) Sample() (HostSample, error) {
	total, idle, err := readCPU()
	if err != nil {
		return HostSample{}, err
	}
	var sample HostSample
	if h.prevCPU != nil {
		deltaTotal := total - h.prevCPU.total
		deltaIdle := idle - h.prevCPU.idle
		if deltaTotal > 0 {
			sample.CPUPct = round2(100 * (1 - float64(deltaIdle)/float64(deltaTotal)))
		}
	}
	h.prevCPU = &cpuSample{total: total, idle: idle}

	memTotal, memAvail, err := readMem()
	if err == nil && memTotal > 0 {
		used := memTotal - memAvail
		sample.RAMPct = round2(100 * float64(used) / float64(memTotal))
		sample.RAMUsedMB = round2(float64(used) / (1024 * 1024))
	}

	totalDisk, usedDisk, err := readDiskUsage("/")
	if err == nil && totalDisk > 0 {
		sample.DiskPct = round2(100 * float64(usedDisk) / float64(totalDisk))
	}

	if up, err := readUptimeSec(); err == nil {
		sample.UptimeSec = up
	}
	return sample, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func readCPU() (total, idle uint64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if strings.HasPrefix(line, "cpu ") {
			parts := strings.Fields(line)
			if len(parts) < 5 {
				return 0, 0, errors.New("invalid cpu line")
			}
			vals := make([]uint64, 0, len(parts)-1)
			for _, p := range parts[1:] {
				v, e := strconv.ParseUint(p, 10, 64)
				if e != nil {
					return 0, 0, e
				}
				vals = append(vals, v)
				total += v
			}
			idle = vals[3]
			if len(vals) > 4 {
				idle += vals[4]
			}
			return total, idle, nil
		}
	}
	if err := s.Err(); err != nil {
		return 0, 0, err
	}
	return 0, 0, errors.New("cpu line not found")
}

func readMem() (total, available uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[0] == "MemTotal:" {
			total, _ = strconv.ParseUint(fields[1], 10, 64)
			total *= 1024
		}
		if fields[0] == "MemAvailable:" {
			available, _ = strconv.ParseUint(fields[1], 10, 64)
			available *= 1024
		}
	}
	if total == 0 {
		return 0, 0, errors.New("meminfo parse failed")
	}
	return total, available, nil
}

func readDiskUsage(path string) (total, used uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	total = st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	used = total - free
	return total, used, nil
}

func readUptimeSec() (int64, error) {
	b, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0, err
	}
	parts := strings.Fields(string(b))
	if len(parts) == 0 {
		return 0, fmt.Errorf("invalid uptime")
	}
	f, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
