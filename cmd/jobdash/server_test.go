package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nixpig/jobdash/internal/config"
	"github.com/nixpig/jobdash/internal/grpcapi"
)

type addrs struct {
	http string
	grpc string
}

func startTestServer(t *testing.T, cfg *config.Config) addrs {
	t.Helper()

	s := newServer(cfg, slog.New(slog.DiscardHandler))

	readyCh := make(chan addrs, 1)
	s.ready = func(httpAddr, grpcAddr string) {
		readyCh <- addrs{http: httpAddr, grpc: grpcAddr}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.run(ctx)
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("expected clean shutdown: got '%v'", err)
			}
		case <-time.After(10 * time.Second):
			t.Error("expected server to shut down")
		}
	})

	select {
	case a := <-readyCh:
		return a
	case err := <-errCh:
		t.Fatalf("failed to start server: '%v'", err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected server to be ready")
	}

	return addrs{}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.Monitor.Interval = 10 * time.Millisecond

	return cfg
}

func get(t *testing.T, u string) string {
	t.Helper()

	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("expected to read body: got '%v'", err)
	}

	return string(b)
}

func TestServerIntegration(t *testing.T) {
	t.Parallel()

	t.Run("Test serve demo jobs", func(t *testing.T) {
		t.Parallel()

		a := startTestServer(t, testConfig())
		base := "http://" + a.http

		resp, err := http.PostForm(base+"/compute", url.Values{"a": {"2"}, "b": {"3"}})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if !strings.Contains(string(b), "5") {
			t.Errorf("expected sum: got '%s'", b)
		}

		if status := get(t, base+"/status"); !strings.Contains(status, "Has Computed: true") {
			t.Errorf("expected status var: got '%s'", status)
		}

		if body := get(t, base+"/nope"); !strings.Contains(body, "Go away.") {
			t.Errorf("expected not found body: got '%s'", body)
		}
	})

	t.Run("Test monitoring job is pinned", func(t *testing.T) {
		t.Parallel()

		if runtime.GOOS != "linux" {
			t.Skip("resource monitoring needs procfs")
		}

		a := startTestServer(t, testConfig())

		client, err := grpcapi.Dial(a.grpc, nil)
		if err != nil {
			t.Fatalf("failed to connect: '%v'", err)
		}
		defer client.Close()

		jobs, err := client.ListJobs(t.Context())
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		values := jobs.Fields["jobs"].GetListValue().GetValues()
		if len(values) != 1 {
			t.Fatalf("expected monitoring job: got '%d' jobs", len(values))
		}

		name := values[0].GetStructValue().Fields["name"].GetStringValue()
		if name != "Monitoring" {
			t.Errorf("expected job name: got '%s', want '%s'", name, "Monitoring")
		}

		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(get(t, "http://"+a.http+"/status"), "Resources") {
			if time.Now().After(deadline) {
				t.Fatal("expected monitoring charts on status page")
			}

			time.Sleep(10 * time.Millisecond)
		}
	})

	t.Run("Test grpc disabled", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig()
		cfg.GRPCAddr = ""
		cfg.Monitor.Enabled = false

		a := startTestServer(t, cfg)

		if a.grpc != "" {
			t.Errorf("expected no grpc listener: got '%s'", a.grpc)
		}

		if body := get(t, "http://"+a.http+"/jobs"); !strings.Contains(body, "Running jobs") {
			t.Errorf("expected jobs page: got '%s'", body)
		}
	})

	t.Run("Test failed listen starts no jobs", func(t *testing.T) {
		t.Parallel()

		taken, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("expected to listen: got '%v'", err)
		}
		defer taken.Close()

		cfg := testConfig()
		cfg.GRPCAddr = taken.Addr().String()

		s := newServer(cfg, slog.New(slog.DiscardHandler))

		if err := s.run(t.Context()); err == nil {
			t.Fatal("expected listen on a taken address to return error")
		}

		if s.manager.Len() != 0 {
			t.Errorf("expected no jobs to be started: got '%d'", s.manager.Len())
		}
	})
}
