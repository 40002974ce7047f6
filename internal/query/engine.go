package query

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"pulsemon/internal/db"
	"pulsemon/internal/heartbeat"
	"pulsemon/internal/models"
)

// Aggregate summarizes the numeric samples that fell into one bucket (or one
// whole range). P95 uses the nearest-rank method on the sorted values.
// Jitter is max minus min.
type Aggregate struct {
	Avg    float64 `json:"avg"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P95    float64 `json:"p95"`
	Jitter float64 `json:"jitter"`
	Count  int     `json:"count"`
}

// Bucket is one downsampled time window. Series with no raw samples in the
// window are nil, never fabricated.
type Bucket struct {
	TS            time.Time             `json:"ts"`
	CPU           *Aggregate            `json:"cpu"`
	RAM           *Aggregate            `json:"ram"`
	Disk          *Aggregate            `json:"disk"`
	Ping          *Aggregate            `json:"ping"`
	CycleDuration *Aggregate            `json:"cycle_duration"`
	Services      map[string]*Aggregate `json:"services,omitempty"`
}

// ServiceStats are range-wide per-service statistics.
type ServiceStats struct {
	UptimePct float64    `json:"uptime_pct"`
	Healthy   int        `json:"healthy"`
	Unhealthy int        `json:"unhealthy"`
	Latency   *Aggregate `json:"latency"`
}

// Result is the bucketed history plus range-wide statistics for one query.
type Result struct {
	From          time.Time               `json:"from"`
	To            time.Time               `json:"to"`
	BucketSeconds int64                   `json:"bucket_seconds"`
	Buckets       []Bucket                `json:"buckets"`
	NetworkUptime float64                 `json:"network_uptime_pct"`
	WorkerUptime  float64                 `json:"worker_uptime_pct"`
	StatusCounts  map[models.Status]int   `json:"status_counts"`
	WorkerCounts  map[string]int          `json:"worker_counts"`
	Services      map[string]ServiceStats `json:"services"`
	PingStats     *Aggregate              `json:"ping_stats"`
	CycleStats    *Aggregate              `json:"cycle_stats"`
}

// Engine answers range queries by bucketing raw cycles into a fixed point
// budget with derived statistics.
type Engine struct {
	repo         *db.Repository
	interval     time.Duration
	targetPoints int
	now          func() time.Time
}

func NewEngine(repo *db.Repository, interval time.Duration, targetPoints int) *Engine {
	if targetPoints < 1 {
		targetPoints = 30
	}
	return &Engine{repo: repo, interval: interval, targetPoints: targetPoints, now: time.Now}
}

var ranges = map[string]time.Duration{
	"live": 5 * time.Minute,
	"1h":   time.Hour,
	"3h":   3 * time.Hour,
	"6h":   6 * time.Hour,
	"12h":  12 * time.Hour,
	"24h":  24 * time.Hour,
	"7d":   7 * 24 * time.Hour,
	"30d":  30 * 24 * time.Hour,
}

// ParseRange maps a dashboard range keyword onto its duration.
func ParseRange(key string) (time.Duration, bool) {
	d, ok := ranges[key]
	return d, ok
}

// Build computes the downsampled view of the requested range. The bucket
// width is max(raw cycle interval, duration / target points), so a range of
// exactly targetPoints*interval yields one bucket per raw cycle and any
// larger range yields exactly targetPoints buckets.
func (e *Engine) Build(ctx context.Context, dur time.Duration) (Result, error) {
	now := e.now().UTC()
	from := now.Add(-dur)

	width := dur / time.Duration(e.targetPoints)
	if width < e.interval {
		width = e.interval
	}
	width = width.Round(time.Second)
	if width < time.Second {
		width = time.Second
	}
	widthSec := int64(width / time.Second)
	alignedStart := (from.Unix() / widthSec) * widthSec
	count := int(dur / width)
	if count < 1 {
		count = 1
	}

	cycles, err := e.repo.CyclesSince(ctx, from)
	if err != nil {
		return Result{}, err
	}
	samples, err := e.repo.ServiceChecksSince(ctx, from)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		From:          from,
		To:            now,
		BucketSeconds: widthSec,
		Buckets:       make([]Bucket, count),
		StatusCounts:  map[models.Status]int{},
		WorkerCounts:  map[string]int{},
		Services:      map[string]ServiceStats{},
	}

	type bucketAcc struct {
		cpu, ram, disk, ping, cycle []float64
		services                    map[string][]float64
	}
	accs := make([]bucketAcc, count)
	for i := range res.Buckets {
		res.Buckets[i].TS = time.Unix(alignedStart+int64(i)*widthSec, 0).UTC()
	}

	bucketIndex := func(ts time.Time) int {
		idx := int((ts.Unix() - alignedStart) / widthSec)
		if idx < 0 {
			return -1
		}
		if idx >= count {
			idx = count - 1
		}
		return idx
	}

	var netOK, workerOK int
	var pingAll, cycleAll []float64
	for _, c := range cycles {
		if c.InternetOK {
			netOK++
		}
		if c.WorkerStatus != nil && *c.WorkerStatus == heartbeat.StatusOK {
			workerOK++
		}
		res.WorkerCounts[workerLabel(c.WorkerStatus)]++
		cycleAll = append(cycleAll, float64(c.CycleDurationMS))
		if c.PingMS != nil {
			pingAll = append(pingAll, float64(*c.PingMS))
		}

		idx := bucketIndex(c.TS)
		if idx < 0 {
			continue
		}
		acc := &accs[idx]
		acc.cpu = append(acc.cpu, c.CPUPct)
		acc.ram = append(acc.ram, c.RAMPct)
		acc.disk = append(acc.disk, c.DiskPct)
		acc.cycle = append(acc.cycle, float64(c.CycleDurationMS))
		if c.PingMS != nil {
			acc.ping = append(acc.ping, float64(*c.PingMS))
		}
	}

	svcAll := map[string][]float64{}
	svcHealthy := map[string]int{}
	svcUnhealthy := map[string]int{}
	for _, s := range samples {
		res.StatusCounts[s.Status]++
		if s.Status.Healthy() {
			svcHealthy[s.ServiceName]++
		} else {
			svcUnhealthy[s.ServiceName]++
		}
		if s.LatencyMS != nil {
			svcAll[s.ServiceName] = append(svcAll[s.ServiceName], float64(*s.LatencyMS))
		}
		idx := bucketIndex(s.TS)
		if idx < 0 || s.LatencyMS == nil {
			continue
		}
		acc := &accs[idx]
		if acc.services == nil {
			acc.services = map[string][]float64{}
		}
		acc.services[s.ServiceName] = append(acc.services[s.ServiceName], float64(*s.LatencyMS))
	}

	for i := range res.Buckets {
		acc := &accs[i]
		res.Buckets[i].CPU = aggregate(acc.cpu)
		res.Buckets[i].RAM = aggregate(acc.ram)
		res.Buckets[i].Disk = aggregate(acc.disk)
		res.Buckets[i].Ping = aggregate(acc.ping)
		res.Buckets[i].CycleDuration = aggregate(acc.cycle)
		if len(acc.services) > 0 {
			res.Buckets[i].Services = map[string]*Aggregate{}
			for name, vals := range acc.services {
				res.Buckets[i].Services[name] = aggregate(vals)
			}
		}
	}

	if total := len(cycles); total > 0 {
		res.NetworkUptime = round2(100 * float64(netOK) / float64(total))
		res.WorkerUptime = round2(100 * float64(workerOK) / float64(total))
	}
	for name := range mergeKeys(svcHealthy, svcUnhealthy) {
		healthy, unhealthy := svcHealthy[name], svcUnhealthy[name]
		stats := ServiceStats{
			Healthy:   healthy,
			Unhealthy: unhealthy,
			Latency:   aggregate(svcAll[name]),
		}
		if n := healthy + unhealthy; n > 0 {
			stats.UptimePct = round2(100 * float64(healthy) / float64(n))
		}
		res.Services[name] = stats
	}
	res.PingStats = aggregate(pingAll)
	res.CycleStats = aggregate(cycleAll)
	return res, nil
}

// aggregate reduces raw samples to avg/min/max/p95/jitter; nil when empty.
func aggregate(vals []float64) *Aggregate {
	if len(vals) == 0 {
		return nil
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	min, max := sorted[0], sorted[len(sorted)-1]
	rank := int(math.Ceil(0.95 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return &Aggregate{
		Avg:    round2(sum / float64(len(sorted))),
		Min:    min,
		Max:    max,
		P95:    sorted[rank-1],
		Jitter: max - min,
		Count:  len(sorted),
	}
}

func workerLabel(code *int) string {
	if code == nil {
		return "null"
	}
	return strconv.Itoa(*code)
}

func mergeKeys(a, b map[string]int) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
