package monitoring

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nixpig/jobdash/internal/jobmanager/result"
	"github.com/nixpig/jobdash/internal/view"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultHistory  = 30

	// JobName is the name the monitor runs under in the job pool.
	JobName = "Monitoring"

	labelFormat = "15:04:05"
	mebibyte    = 1 << 20
)

// Config controls how often the monitor samples and how many samples each
// chart keeps.
type Config struct {
	Interval time.Duration
	History  int
}

// Monitor samples resource usage every interval and publishes charts of the
// most recent samples. It implements jobmanager.Task.
type Monitor struct {
	sampler  Sampler
	interval time.Duration
	logger   *slog.Logger

	cpu    *view.Chart
	memory *view.Chart
	last   Sample
}

// New creates a Monitor reading from sampler. Zero config values fall back to
// the defaults.
func New(sampler Sampler, cfg Config, logger *slog.Logger) (*Monitor, error) {
	if sampler == nil {
		return nil, errors.New("sampler cannot be nil")
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Monitor{
		sampler:  sampler,
		interval: cfg.Interval,
		logger:   logger,
		cpu:      view.NewChart("cpu", "CPU usage (%)", cfg.History, "cpu"),
		memory:   view.NewChart("memory", "Memory (MiB)", cfg.History, "resident", "virtual"),
	}, nil
}

// Run samples until ctx is done. Failed samples are logged and skipped.
func (m *Monitor) Run(ctx context.Context, page result.Publisher) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample(page)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample(page)
		}
	}
}

func (m *Monitor) sample(page result.Publisher) {
	s, err := m.sampler.Sample()
	if err != nil {
		m.logger.Warn("sample resource usage", "err", err)
		return
	}

	m.Log(s)
	page.SetPage(m.Render())
}

// Log records s in the charts.
func (m *Monitor) Log(s Sample) {
	label := s.At.Format(labelFormat)

	m.cpu.Log(label, s.CPUPercent)
	m.memory.Log(
		label,
		float64(s.ResidentBytes)/mebibyte,
		float64(s.VirtualBytes)/mebibyte,
	)

	m.last = s
}

// Render renders the charts and a summary of the latest sample.
func (m *Monitor) Render() template.HTML {
	summary := fmt.Sprintf(
		"%d samples, last %s: CPU %.1f%%, resident %s, virtual %s, %d threads",
		m.cpu.Len(),
		humanize.Time(m.last.At),
		m.last.CPUPercent,
		humanize.IBytes(m.last.ResidentBytes),
		humanize.IBytes(m.last.VirtualBytes),
		m.last.Threads,
	)

	return "<h2>Resources</h2>\n<p>" + view.Text(summary) + "</p>\n<div class=\"row\">" +
		m.cpu.Render() + m.memory.Render() + "</div>\n"
}
