package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/api"
	"github.com/banshee-data/walkpal/internal/audiocue"
	"github.com/banshee-data/walkpal/internal/config"
	"github.com/banshee-data/walkpal/internal/db"
	"github.com/banshee-data/walkpal/internal/detection"
	"github.com/banshee-data/walkpal/internal/device"
	"github.com/banshee-data/walkpal/internal/overlay"
	"github.com/banshee-data/walkpal/internal/pipeline"
	"github.com/banshee-data/walkpal/internal/proximity"
	"github.com/banshee-data/walkpal/internal/report"
	"github.com/banshee-data/walkpal/internal/serialmux"
	"github.com/banshee-data/walkpal/internal/tracking"
)

const detectionRcvBuf = 1 << 20

type options struct {
	MockWearable bool
	// Ready is called once every listener is bound.
	Ready func(boundAddrs)
}

type boundAddrs struct {
	HTTP       net.Addr
	Detections net.Addr
	GRPC       net.Addr // nil when the overlay gRPC feed is disabled
}

type daemon struct {
	cfg    config.ServiceConfig
	tuning *config.TuningConfig
	opts   options
}

func newDaemon(cfg config.ServiceConfig, tuning *config.TuningConfig, opts options) *daemon {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &daemon{cfg: cfg, tuning: tuning, opts: opts}
}

// Run wires the pipeline and blocks until ctx is done.
func (d *daemon) Run(ctx context.Context) error {
	lock := flock.New(d.cfg.Paths.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another walkpal daemon instance is already running")
	}
	defer lock.Unlock()

	journal, err := db.NewDB(d.cfg.Paths.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer journal.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	link := serialmux.NewLink(d.cfg.Serial.Device, serialmux.PortOptions{
		BaudRate: d.cfg.Serial.BaudRate,
		DataBits: d.cfg.Serial.DataBits,
		StopBits: d.cfg.Serial.StopBits,
		Parity:   d.cfg.Serial.Parity,
	}, nil)
	defer link.Close()

	switch {
	case d.opts.MockWearable:
		if err := link.Attach(ctx, serialmux.NewMockSerialMux()); err != nil {
			return err
		}
	case d.cfg.Serial.Device != "":
		if err := link.Connect(ctx); err != nil {
			// Commands are counted as transport errors until the device shows up.
			log.Printf("wearable unavailable: %v", err)
		}
	default:
		log.Printf("no wearable configured, commands are dropped")
	}

	var audio alert.AudioSink = audiocue.Noop{}
	if addr := d.cfg.Network.AudioCueAddr; addr != "" {
		sender, err := audiocue.NewSender(addr, time.Minute)
		if err != nil {
			return err
		}
		sender.Start(ctx)
		audio = sender
	}

	ocfg := overlay.DefaultConfig()
	ocfg.ListenAddr = d.cfg.Network.GRPCListen
	pub := overlay.NewPublisher(ocfg)

	tracker := tracking.NewTracker(tracking.TrackerConfigFromTuning(d.tuning))
	engine := proximity.NewEngine(d.tuning.GetClassThresholds())
	runner := pipeline.NewRunner(
		pipeline.ConfigFromTuning(d.tuning),
		tracker, engine,
		alert.NewDispatcher(link, audio),
		pipeline.WithJournal(journal),
		pipeline.WithPublisher(pub),
	)

	listener := detection.NewUDPListener(detection.UDPListenerConfig{
		Address: d.cfg.Network.DetectionListen,
		RcvBuf:  detectionRcvBuf,
		Sink:    runner,
	})
	if err := listener.Listen(); err != nil {
		return fmt.Errorf("detection listener: %w", err)
	}

	var bound boundAddrs
	bound.Detections = listener.Addr()

	if ocfg.ListenAddr != "" {
		grpcServer := overlay.NewServer(pub)
		addr, err := grpcServer.Start()
		if err != nil {
			return fmt.Errorf("overlay feed: %w", err)
		}
		defer grpcServer.Stop()
		bound.GRPC = addr
	}

	if d.cfg.Serial.Hotplug {
		mon := device.NewMonitor(d.cfg.Serial.Device, device.LinkHandler{Link: link})
		if err := mon.Start(ctx); err != nil {
			log.Printf("hotplug monitor unavailable: %v", err)
		} else {
			defer mon.Stop()
		}
	}

	mux := api.NewServer(runner, journal, link, pub).ServeMux()
	mux.HandleFunc("/ws/overlay", pub.WebsocketHandler())
	link.AttachAdminRoutes(mux)
	journal.AttachAdminRoutes(mux)
	report.AttachAdminRoutes(mux, journal)

	httpListener, err := net.Listen("tcp", d.cfg.Network.HTTPListen)
	if err != nil {
		return fmt.Errorf("http listener: %w", err)
	}
	bound.HTTP = httpListener.Addr()
	server := &http.Server{Handler: api.LoggingMiddleware(mux)}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline stopped: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("detection listener stopped: %v", err)
		}
		log.Print("detection routine terminated")
	}()

	serveErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			if err := server.Serve(httpListener); err != nil && err != http.ErrServerClosed {
				serveErr <- err
				cancel()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	log.Printf("walkpal running: http=%s detections=%s", bound.HTTP, bound.Detections)
	if d.opts.Ready != nil {
		d.opts.Ready(bound)
	}

	wg.Wait()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}
