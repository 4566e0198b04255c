// Package stats counts client traffic. A *Stats is a client.Recorder and
// can be exported to Prometheus through Collector.
package stats

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loganszeto/jsonstore-go/protocol"
)

var verbs = []protocol.Verb{
	protocol.VerbPing,
	protocol.VerbSet,
	protocol.VerbGet,
	protocol.VerbDel,
	protocol.VerbTTL,
	protocol.VerbExpire,
}

type verbCounters struct {
	commands atomic.Int64
	errors   atomic.Int64
	nanos    atomic.Int64
}

type Stats struct {
	byVerb   map[protocol.Verb]*verbCounters
	hits     atomic.Int64
	misses   atomic.Int64
	authFail atomic.Int64
}

func New() *Stats {
	s := &Stats{byVerb: make(map[protocol.Verb]*verbCounters, len(verbs))}
	for _, v := range verbs {
		s.byVerb[v] = &verbCounters{}
	}
	return s
}

func (s *Stats) RecordCommand(verb protocol.Verb, elapsed time.Duration, err error) {
	c, ok := s.byVerb[verb]
	if !ok {
		return
	}
	c.commands.Add(1)
	c.nanos.Add(int64(elapsed))
	if err != nil {
		c.errors.Add(1)
	}
}

func (s *Stats) RecordGet(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
}

func (s *Stats) RecordAuthFailure() {
	s.authFail.Add(1)
}

// Snapshot returns counters keyed like "get", "get_errors", "hits".
func (s *Stats) Snapshot() map[string]int64 {
	out := map[string]int64{
		"hits":          s.hits.Load(),
		"misses":        s.misses.Load(),
		"auth_failures": s.authFail.Load(),
	}
	var total, errs int64
	for verb, c := range s.byVerb {
		name := strings.ToLower(string(verb))
		n, e := c.commands.Load(), c.errors.Load()
		out[name] = n
		out[name+"_errors"] = e
		total += n
		errs += e
	}
	out["commands"] = total
	out["errors"] = errs
	return out
}

// Collector exposes the counters as Prometheus metrics.
func (s *Stats) Collector() prometheus.Collector {
	return &collector{
		stats: s,
		commands: prometheus.NewDesc(
			prometheus.BuildFQName("jsonstore", "client", "commands_total"),
			"Commands sent to the server, by verb.",
			[]string{"verb"}, nil,
		),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName("jsonstore", "client", "errors_total"),
			"Commands that failed with a transport or timeout error, by verb.",
			[]string{"verb"}, nil,
		),
		seconds: prometheus.NewDesc(
			prometheus.BuildFQName("jsonstore", "client", "command_seconds_total"),
			"Time spent in round trips, by verb.",
			[]string{"verb"}, nil,
		),
		gets: prometheus.NewDesc(
			prometheus.BuildFQName("jsonstore", "client", "get_total"),
			"GET replies by result.",
			[]string{"result"}, nil,
		),
		authFail: prometheus.NewDesc(
			prometheus.BuildFQName("jsonstore", "client", "auth_failures_total"),
			"Handshakes rejected by the server.",
			nil, nil,
		),
	}
}

type collector struct {
	stats    *Stats
	commands *prometheus.Desc
	errors   *prometheus.Desc
	seconds  *prometheus.Desc
	gets     *prometheus.Desc
	authFail *prometheus.Desc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.commands
	ch <- c.errors
	ch <- c.seconds
	ch <- c.gets
	ch <- c.authFail
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, verb := range verbs {
		vc := c.stats.byVerb[verb]
		name := strings.ToLower(string(verb))
		ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(vc.commands.Load()), name)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(vc.errors.Load()), name)
		ch <- prometheus.MustNewConstMetric(c.seconds, prometheus.CounterValue, time.Duration(vc.nanos.Load()).Seconds(), name)
	}
	ch <- prometheus.MustNewConstMetric(c.gets, prometheus.CounterValue, float64(c.stats.hits.Load()), "hit")
	ch <- prometheus.MustNewConstMetric(c.gets, prometheus.CounterValue, float64(c.stats.misses.Load()), "miss")
	ch <- prometheus.MustNewConstMetric(c.authFail, prometheus.CounterValue, float64(c.stats.authFail.Load()))
}
