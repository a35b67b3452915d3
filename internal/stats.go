package internal

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type statKey struct {
	app      string
	endpoint string
	method   string
}

// String renders the dotted counter name, api.<app>.<endpoint>.<METHOD>.
func (k statKey) String() string {
	return "api." + k.app + "." + k.endpoint + "." + k.method
}

// Stats counts served requests per application endpoint and method. It is
// owned by whoever builds the dispatcher and is safe for concurrent use.
type Stats struct {
	mu       sync.Mutex
	counters map[statKey]uint64
	desc     *prometheus.Desc
}

func NewStats() *Stats {
	return &Stats{
		counters: make(map[statKey]uint64),
		desc: prometheus.NewDesc(
			"schemata_requests_total",
			"Requests served per application endpoint and method.",
			[]string{"app", "endpoint", "method"}, nil,
		),
	}
}

// Account increments the counter for one request.
func (s *Stats) Account(app, endpoint, method string) {
	s.mu.Lock()
	s.counters[statKey{app: app, endpoint: endpoint, method: method}]++
	s.mu.Unlock()
}

// Snapshot copies the counters whose dotted name starts with prefix.
func (s *Stats) Snapshot(prefix string) map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64)
	for k, v := range s.counters {
		if name := k.String(); strings.HasPrefix(name, prefix) {
			out[name] = v
		}
	}
	return out
}

func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.desc
}

func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	s.mu.Lock()
	keys := make([]statKey, 0, len(s.counters))
	values := make(map[statKey]uint64, len(s.counters))
	for k, v := range s.counters {
		keys = append(keys, k)
		values[k] = v
	}
	s.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	for _, k := range keys {
		ch <- prometheus.MustNewConstMetric(s.desc, prometheus.CounterValue, float64(values[k]), k.app, k.endpoint, k.method)
	}
}

var _ prometheus.Collector = (*Stats)(nil)
