// cmd/meterhub/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/api"
	"github.com/tamzrod/meterhub/internal/archive"
	"github.com/tamzrod/meterhub/internal/config"
	"github.com/tamzrod/meterhub/internal/hub"
	"github.com/tamzrod/meterhub/internal/logging"
	"github.com/tamzrod/meterhub/internal/metrics"
	"github.com/tamzrod/meterhub/internal/mqttpub"
	"github.com/tamzrod/meterhub/internal/poller"
	"github.com/tamzrod/meterhub/internal/status"
	"github.com/tamzrod/meterhub/internal/trace"
	"github.com/tamzrod/meterhub/internal/writer"
)

const version = "1.0.1"

const shutdownTimeout = 5 * time.Second

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML config")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", api.Name, version)
		return
	}

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config validation failed: %v\n", err)
		os.Exit(1)
	}
	config.Normalize(cfg)

	logger, closeLog := logging.Setup(cfg.Log)
	defer closeLog()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("meterhub stopped")
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	log := logrus.NewEntry(logger)
	log.WithFields(logrus.Fields{
		"version": version,
		"sources": len(cfg.Sources),
		"outputs": len(cfg.Outputs),
	}).Info("meterhub starting")

	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --------------------
	// Drivers + pollers
	// --------------------

	set, err := poller.Build(cfg, log)
	if err != nil {
		return err
	}
	defer set.Close()

	tracker := status.NewTracker()
	for _, id := range set.Order {
		tracker.Add(id, set.Sources[id].Info)
	}

	// --------------------
	// Pushers + sinks
	// --------------------

	ring := trace.New(*cfg.Trace.Size)
	pushers := []hub.Pusher{ring}

	var arc *archive.Archive
	if cfg.Archive.Path != "" {
		arcCfg := archive.Config{
			Path:            cfg.Archive.Path,
			IntervalMinutes: cfg.Archive.IntervalMinutes,
			SaveHours:       cfg.Archive.SaveHours,
			Keys:            cfg.Archive.Keys,
			Log:             log,
		}
		if f := cfg.Archive.FTP; f != nil {
			up, err := archive.NewFTPUploader(archive.FTPConfig{
				Server:   f.Server,
				User:     f.User,
				Password: f.Password,
				Path:     f.Path,
				Timeout:  time.Duration(f.TimeoutMs) * time.Millisecond,
			})
			if err != nil {
				return err
			}
			arcCfg.Upload = up
		}
		arc, err = archive.New(arcCfg)
		if err != nil {
			return err
		}
		pushers = append(pushers, arc)
	}

	var sinks []hub.Sink
	if cfg.Mirror != nil {
		mirror, closeMirror, err := writer.BuildMirror(cfg, tracker, log)
		if err != nil {
			return err
		}
		defer closeMirror()
		sinks = append(sinks, mirror)
	}
	if cfg.MQTT != nil {
		pub, err := mqttpub.New(mqttpub.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Retained: cfg.MQTT.Retained,
			Log:      log,
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// --------------------
	// Orchestrator
	// --------------------

	commands, err := hub.CommandsFromConfig(cfg, log)
	if err != nil {
		return err
	}

	h, err := hub.New(hub.Config{
		Sources:  hub.Getters(set),
		Outputs:  hub.OutputsFromConfig(cfg),
		Publish:  hub.PublishFromConfig(cfg),
		Commands: commands,
		Pushers:  pushers,
		Sinks:    sinks,
		Cycle:    time.Duration(cfg.Hub.CycleMs) * time.Millisecond,
		Log:      log,
	})
	if err != nil {
		return err
	}

	apiCfg := api.Config{
		Addr:    cfg.Hub.Listen,
		Version: version,
		Hub:     h,
		Trace:   ring,
		Status:  tracker,
		Metrics: cfg.Hub.Metrics,
		Log:     log,
	}
	if arc != nil {
		apiCfg.Archive = arc
	}
	if cfg.Log.Output == "file" {
		apiCfg.LogFile = cfg.Log.FilePath
	}
	srv, err := api.NewServer(apiCfg)
	if err != nil {
		return err
	}

	// --------------------
	// Start
	// --------------------

	var wg sync.WaitGroup
	results := make(chan poller.PollResult)

	for _, p := range set.Pollers {
		log.WithFields(logrus.Fields{
			"poller":   p.Name(),
			"interval": p.Interval(),
			"readers":  p.Readers(),
		}).Info("poller started")
		wg.Add(1)
		go func(p *poller.Poller) {
			defer wg.Done()
			p.Run(ctx, results)
		}(p)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.TrackHealth(ctx, tracker, results, log)
	}()
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-srvErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("http shutdown")
	}

	wg.Wait()

	if arc != nil {
		if serr := arc.Save(); serr != nil {
			log.WithError(serr).Debug("archive not saved on exit")
		}
		arc.Wait()
	}
	return err
}
