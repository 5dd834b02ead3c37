package main

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sorted := append([]time.Duration(nil), rs.durations...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	mean = sum / time.Duration(len(sorted))
	median = sorted[len(sorted)/2]

	p95idx := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(sorted))*0.99)) - 1
	p95 = sorted[p95idx]
	p99 = sorted[p99idx]

	return
}

// latencyRecorder is shared by all workers.
type latencyRecorder struct {
	mu     sync.Mutex
	order  []string
	routes map[string]*routeStats
}

func newLatencyRecorder() *latencyRecorder {
	return &latencyRecorder{routes: make(map[string]*routeStats)}
}

func (l *latencyRecorder) record(route string, d time.Duration, failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rs, ok := l.routes[route]
	if !ok {
		rs = &routeStats{name: route}
		l.routes[route] = rs
		l.order = append(l.order, route)
	}
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

func (l *latencyRecorder) print() {
	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Println("\nAPI Performance")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-22s %7s %7s %10s %10s %10s %10s %10s %10s\n",
		"Route", "Calls", "Fails", "Min", "Mean", "Median", "P95", "P99", "Max")
	for _, route := range l.order {
		rs := l.routes[route]
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("%-22s %7d %7d %10v %10v %10v %10v %10v %10v\n",
			rs.name, rs.totalCalls, rs.failures,
			min.Round(time.Microsecond), mean.Round(time.Microsecond), median.Round(time.Microsecond),
			p95.Round(time.Microsecond), p99.Round(time.Microsecond), max.Round(time.Microsecond))
	}
}

// outcomes counts order results by status or error code.
type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
}

func newOutcomes() *outcomes {
	return &outcomes{counts: make(map[string]int)}
}

func (o *outcomes) add(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[key]++
	o.total++
}

func (o *outcomes) print() {
	o.mu.Lock()
	defer o.mu.Unlock()

	keys := make([]string, 0, len(o.counts))
	for k := range o.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("\nOrder Outcomes")
	fmt.Println(strings.Repeat("-", 40))
	for _, k := range keys {
		n := o.counts[k]
		bar := strings.Repeat("#", int(float64(n)/float64(o.total)*30))
		fmt.Printf("%-30s %s (%d)\n", k, bar, n)
	}
}
