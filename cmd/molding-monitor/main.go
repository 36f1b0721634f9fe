// Command molding-monitor turns pin snapshots from the plant floor into
// machine state, stoppages and production metrics, serves them over HTTP
// and publishes events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/molding-monitor/internal/config"
	"github.com/sweeney/molding-monitor/internal/engine"
	"github.com/sweeney/molding-monitor/internal/events"
	"github.com/sweeney/molding-monitor/internal/metrics"
	"github.com/sweeney/molding-monitor/internal/mqtt"
	"github.com/sweeney/molding-monitor/internal/status"
	"github.com/sweeney/molding-monitor/internal/store"
	"github.com/sweeney/molding-monitor/internal/web"
)

func main() {
	var (
		configPath    string
		database      string
		httpAddr      string
		broker        string
		tick          time.Duration
		heartbeat     time.Duration
		timezone      string
		printMachines bool
	)
	flag.StringVar(&configPath, "config", "", "YAML config file")
	flag.StringVar(&database, "db", "molding-monitor.db", "sqlite database path")
	flag.StringVar(&httpAddr, "http", ":8080", "HTTP listen address")
	flag.StringVar(&broker, "broker", "", "MQTT broker address (empty disables MQTT)")
	flag.DurationVar(&tick, "tick", time.Minute, "Reconciliation interval")
	flag.DurationVar(&heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (negative to disable)")
	flag.StringVar(&timezone, "timezone", "Local", "Plant timezone (IANA name)")
	flag.BoolVar(&printMachines, "print-machines", false, "Print machine statuses from the database and exit")
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

	// CLI flags override the file only when set explicitly.
	if visited["db"] {
		cfg.Database = database
	}
	if visited["http"] {
		cfg.HTTPAddr = httpAddr
	}
	if visited["broker"] {
		cfg.MQTT.Broker = broker
	}
	if visited["tick"] {
		cfg.TickInterval = tick
	}
	if visited["heartbeat"] {
		cfg.Heartbeat = heartbeat
	}
	if visited["timezone"] {
		cfg.Timezone = timezone
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg, printMachines); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printMachines bool) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	shifts, err := cfg.LogicShifts()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Seed(ctx, cfg.Seed()); err != nil {
		return fmt.Errorf("seed directory: %w", err)
	}

	if printMachines {
		machines, err := st.Machines(ctx)
		if err != nil {
			return err
		}
		for _, m := range machines {
			fmt.Printf("%s: %s\n", m.ID, statusOrUnknown(m.Status))
		}
		return nil
	}

	logger := log.Default()
	sqlDB, err := st.DB().DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	metrics.Init(sqlDB, logger)

	to := cfg.LogicTimeouts()
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:         cfg.TickInterval.Milliseconds(),
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		PowerTimeoutMs: to.Power.Milliseconds(),
		CycleTimeoutMs: to.Cycle.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		HTTPAddr:       cfg.HTTPAddr,
		Timezone:       cfg.Timezone,
		Database:       cfg.Database,
	})
	sse := events.NewSSEBroker()

	// MQTT is optional: without a broker events still reach SSE and the
	// status tracker.
	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	notifiers := []events.Notifier{tracker, sse}
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			log.Printf("mqtt: %v, continuing without mqtt", err)
		} else {
			defer rp.Close()
			publisher, mqttStatus = rp, rp
			async := events.NewAsyncPublisher(rp, 0, logger)
			defer async.Close()
			notifiers = append(notifiers, async)
		}
	}

	eng := engine.New(st, engine.Config{
		Timeouts:            to,
		Shifts:              shifts,
		PerformanceFallback: cfg.PerformanceFallback,
		Location:            loc,
		Notifier:            events.NewMultiNotifier(notifiers...),
		Logger:              logger,
		OnTick:              tracker.RecordTick,
	})
	if err := eng.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	tracker.SetMachines(eng.Signals().Statuses(), time.Now())

	// The reconciliation task is started exactly once for the process and
	// must finish before the store closes.
	stopReconcile := startReconciler(ctx, cancel, eng, cfg.TickInterval)
	defer stopReconcile()

	srv := web.New(cfg.HTTPAddr, web.Options{
		Engine:  eng,
		Tracker: tracker,
		Stream:  events.NewStreamHandler(sse),
		Logger:  logger,
	})
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()
	log.Printf("http listening on %s", cfg.HTTPAddr)

	if publisher != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	log.Printf("started: db=%s tick=%v heartbeat=%v timezone=%s broker=%q machines=%d",
		cfg.Database, cfg.TickInterval, cfg.Heartbeat, cfg.Timezone, cfg.MQTT.Broker, len(eng.Signals().MachineIDs()))

	var hb <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		hb = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(publisher, mqttStatus, tracker, sse, time.Now, hb, sigCh)
}

type reconciler interface {
	Run(ctx context.Context, interval time.Duration) error
}

// startReconciler runs r in the background. The returned stop cancels ctx
// and waits for Run to return.
func startReconciler(ctx context.Context, cancel context.CancelFunc, r reconciler, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx, interval); err != nil {
			log.Printf("reconcile: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// runLoop publishes heartbeats until a signal arrives, then publishes the
// shutdown event. publisher may be nil when MQTT is disabled.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, sse *events.SSEBroker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() status.Snapshot {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		if sse != nil {
			tracker.SetSSEClients(sse.Clients())
		}
		return tracker.Snapshot()
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher == nil {
				return nil
			}
			snap := refresh()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-heartbeat:
			snap := refresh()
			log.Printf("heartbeat: uptime=%v accepted=%d rejected=%d machines=%d",
				snap.Uptime().Truncate(time.Second), snap.Counts.SnapshotsAccepted, snap.Counts.SnapshotsRejected, len(snap.Machines))
			if publisher == nil {
				continue
			}
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

func statusOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
