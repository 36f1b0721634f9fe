// Command pin-agent samples the eight signal pins of a plant-floor GPIO
// header and posts each snapshot to the molding monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/molding-monitor/internal/agent"
	"github.com/sweeney/molding-monitor/internal/config"
	"github.com/sweeney/molding-monitor/internal/gpio"
)

func main() {
	var (
		configPath string
		url        string
		interval   time.Duration
		simulate   bool
		chip       string
		seed       int64
	)
	flag.StringVar(&configPath, "config", "", "YAML config file (agent section)")
	flag.StringVar(&url, "url", "", "pin-data endpoint of the monitor")
	flag.DurationVar(&interval, "interval", 2*time.Second, "Sampling interval")
	flag.BoolVar(&simulate, "simulate", false, "Generate random snapshots instead of reading GPIO")
	flag.StringVar(&chip, "chip", "gpiochip0", "GPIO character device")
	flag.Int64Var(&seed, "seed", 0, "Random seed for -simulate (0 uses the clock)")
	flag.Parse()

	visited := map[string]bool{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})

	cfg := config.Default()
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = c
	}
	if visited["url"] {
		cfg.Agent.URL = url
	}
	if visited["interval"] {
		cfg.Agent.Interval = interval
	}
	if visited["simulate"] {
		cfg.Agent.Simulate = simulate
	}
	if visited["chip"] {
		cfg.Agent.Chip = chip
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Agent, seed); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(ctx context.Context, cfg config.AgentConfig, seed int64) error {
	reader, err := newReader(cfg, seed)
	if err != nil {
		return err
	}
	defer reader.Close()

	client, err := agent.NewClient(cfg.URL, agent.WithTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	a := agent.New(reader, client, agent.Config{
		Interval:      cfg.Interval,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, log.New(os.Stderr, "", log.LstdFlags))

	log.Printf("pin-agent: sending to %s every %v (simulate=%v)", cfg.URL, cfg.Interval, cfg.Simulate)
	err = a.Run(ctx)
	st := a.Stats()
	log.Printf("pin-agent: stopped, sent=%d failed=%d backoffs=%d", st.Sent, st.Failed, st.Backoffs)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newReader(cfg config.AgentConfig, seed int64) (gpio.Reader, error) {
	if cfg.Simulate {
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return gpio.NewSimulatedReader(seed), nil
	}
	r, err := gpio.NewRealReader(gpio.Options{Chip: cfg.Chip, Lines: cfg.Lines})
	if err != nil {
		return nil, err
	}
	return r, nil
}
