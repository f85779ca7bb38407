package monitoring_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nixpig/jobdash/internal/jobmanager/result"
	"github.com/nixpig/jobdash/internal/monitoring"
)

// fakeSampler returns readings with growing memory. Every errEvery-th call
// fails when errEvery is set.
type fakeSampler struct {
	mu       sync.Mutex
	calls    int
	errEvery int
}

func (f *fakeSampler) Sample() (monitoring.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.errEvery > 0 && f.calls%f.errEvery == 0 {
		return monitoring.Sample{}, errors.New("sample failed")
	}

	return monitoring.Sample{
		At:            time.Now(),
		CPUPercent:    12.5,
		ResidentBytes: uint64(f.calls) << 20,
		VirtualBytes:  100 << 20,
		Threads:       4,
	}, nil
}

func (f *fakeSampler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func TestMonitor(t *testing.T) {
	t.Parallel()

	t.Run("Test run publishes until stopped", func(t *testing.T) {
		t.Parallel()

		sampler := &fakeSampler{errEvery: 3}

		m, err := monitoring.New(sampler, monitoring.Config{
			Interval: 5 * time.Millisecond,
			History:  4,
		}, nil)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		cell := result.NewCell()
		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)

		go func() {
			errCh <- m.Run(ctx, cell)
		}()

		deadline := time.Now().Add(5 * time.Second)
		for sampler.Calls() < 6 {
			if time.Now().After(deadline) {
				t.Fatal("expected monitor to keep sampling")
			}

			time.Sleep(5 * time.Millisecond)
		}

		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected cancelled: got '%v'", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("expected monitor to stop")
		}

		if !cell.Published() {
			t.Fatal("expected monitor to publish")
		}

		content := string(cell.Load().Content)

		for _, want := range []string{"Resources", `id="cpu"`, `id="memory"`, "CPU 12.5%", "4 threads"} {
			if !strings.Contains(content, want) {
				t.Errorf("expected content to contain '%s': got '%s'", want, content)
			}
		}
	})

	t.Run("Test history is bounded", func(t *testing.T) {
		t.Parallel()

		m, err := monitoring.New(&fakeSampler{}, monitoring.Config{History: 2}, nil)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		for i := range 5 {
			m.Log(monitoring.Sample{
				At:            time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
				ResidentBytes: 3 << 20,
				VirtualBytes:  10 << 20,
			})
		}

		got := string(m.Render())

		if !strings.Contains(got, "2 samples") {
			t.Errorf("expected two samples: got '%s'", got)
		}

		if !strings.Contains(got, "resident 3.0 MiB") {
			t.Errorf("expected humanized resident memory: got '%s'", got)
		}

		if strings.Contains(got, "00:00:00") {
			t.Errorf("expected oldest sample to be dropped: got '%s'", got)
		}
	})

	t.Run("Test nil sampler", func(t *testing.T) {
		t.Parallel()

		if _, err := monitoring.New(nil, monitoring.Config{}, nil); err == nil {
			t.Error("expected nil sampler to return error")
		}
	})
}

func TestProcSampler(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	procDir := filepath.Join(root, "42")

	if err := os.Mkdir(procDir, 0755); err != nil {
		t.Fatalf("create proc dir: %v", err)
	}

	writeStat := func(utime int) {
		t.Helper()

		stat := "42 (jobdash) S 1 42 42 0 -1 4194560 100 0 0 0 " +
			strconv.Itoa(utime) + " 50" +
			" 0 0 20 0 8 0 1000 104857600 2560 18446744073709551615" +
			" 1 1 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0 0 0 0 0 0 0 0 0\n"

		if err := os.WriteFile(filepath.Join(procDir, "stat"), []byte(stat), 0644); err != nil {
			t.Fatalf("write stat: %v", err)
		}
	}

	writeStat(250)

	sampler, err := monitoring.NewProcSamplerAt(root, 42)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	first, err := sampler.Sample()
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if first.CPUPercent != 0 {
		t.Errorf("expected first CPU reading to be zero: got '%v'", first.CPUPercent)
	}

	if first.VirtualBytes != 104857600 {
		t.Errorf("expected virtual bytes: got '%d', want '%d'", first.VirtualBytes, 104857600)
	}

	if want := uint64(2560 * os.Getpagesize()); first.ResidentBytes != want {
		t.Errorf("expected resident bytes: got '%d', want '%d'", first.ResidentBytes, want)
	}

	if first.Threads != 8 {
		t.Errorf("expected threads: got '%d', want '%d'", first.Threads, 8)
	}

	time.Sleep(10 * time.Millisecond)
	writeStat(350)

	second, err := sampler.Sample()
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if second.CPUPercent <= 0 {
		t.Errorf("expected CPU usage between samples: got '%v'", second.CPUPercent)
	}

	if _, err := monitoring.NewProcSamplerAt(root, 7); err == nil {
		t.Error("expected unknown pid to return error")
	}
}
