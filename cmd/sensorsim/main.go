package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/fixtures"
	"github.com/dymasius12/factory-motor-monitoring/internal/handlers"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

type options struct {
	target   string
	mode     string
	file     string
	seed     int64
	motors   int
	count    int
	interval time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.target, "target", "http://localhost:3000", "base URL of the ingestion service")
	flag.StringVar(&opts.mode, "mode", "samples", "samples | random | file")
	flag.StringVar(&opts.file, "file", "", "recorded sensor log (JSON lines) for -mode=file")
	flag.Int64Var(&opts.seed, "seed", 1, "random seed for -mode=random")
	flag.IntVar(&opts.motors, "motors", 3, "number of simulated motors")
	flag.IntVar(&opts.count, "count", 20, "readings to send in -mode=random, 0 runs until interrupted")
	flag.DurationVar(&opts.interval, "interval", 500*time.Millisecond, "delay between readings")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Init(*logLevel)
	log := logger.WithComponent("sensorsim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Error().Err(err).Msg("simulation failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	client := &http.Client{Timeout: 10 * time.Second}
	s := &sender{client: client, url: opts.target + "/api/sensor"}

	switch opts.mode {
	case "samples":
		for _, sample := range fixtures.Samples() {
			if err := s.send(ctx, sample.Name, sample.Reading); err != nil {
				return err
			}
		}
	case "file":
		if opts.file == "" {
			return fmt.Errorf("-file is required for -mode=file")
		}
		f, err := os.Open(opts.file)
		if err != nil {
			return err
		}
		readings, err := fixtures.ReadJSONL(f)
		f.Close()
		if err != nil {
			return err
		}
		for i, r := range readings {
			if err := s.send(ctx, fmt.Sprintf("line %d", i+1), r); err != nil {
				return err
			}
			if !sleep(ctx, opts.interval) {
				break
			}
		}
	case "random":
		gen := fixtures.NewGenerator(opts.seed, opts.motors)
		for i := 0; opts.count == 0 || i < opts.count; i++ {
			c, r := gen.Next(time.Now())
			if err := s.send(ctx, string(c), r); err != nil {
				return err
			}
			if !sleep(ctx, opts.interval) {
				break
			}
		}
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	log := logger.WithComponent("sensorsim")
	log.Info().
		Int("sent", s.sent).
		Int("rejected", s.rejected).
		Int("alerts", s.alerts).
		Msg("simulation finished")
	return nil
}

// sender posts readings and tallies the responses.
type sender struct {
	client *http.Client
	url    string

	sent     int
	rejected int
	alerts   int
}

func (s *sender) send(ctx context.Context, name string, r models.RawReading) error {
	log := logger.WithComponent("sensorsim")

	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("post %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	s.sent++

	if resp.StatusCode != http.StatusOK {
		s.rejected++
		var e handlers.ErrorResponse
		_ = json.Unmarshal(data, &e)
		log.Warn().
			Str("reading", name).
			Int("status", resp.StatusCode).
			Str("error", e.Error).
			Msg("reading rejected")
		return nil
	}

	var out handlers.IngestResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode response for %s: %w", name, err)
	}
	s.alerts += out.AlertsTriggered
	log.Info().
		Str("reading", name).
		Int("alerts", out.AlertsTriggered).
		Msg("reading accepted")
	return nil
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
