package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"

	"github.com/jwoglom/fakebulb/pkg/api"
	"github.com/jwoglom/fakebulb/pkg/bluetooth"
	"github.com/jwoglom/fakebulb/pkg/config"
	"github.com/jwoglom/fakebulb/pkg/dispatcher"
	"github.com/jwoglom/fakebulb/pkg/events"
	"github.com/jwoglom/fakebulb/pkg/handler"
	"github.com/jwoglom/fakebulb/pkg/ota"
	"github.com/jwoglom/fakebulb/pkg/storage"
)

// rebootExitCode asks the supervisor to restart the emulator
const rebootExitCode = 3

// rebooter turns a device reboot into a process restart
type rebooter chan string

func (r rebooter) Reboot(reason string) {
	select {
	case r <- reason:
	default:
	}
}

func main() {
	// if both verbose and quiet are chosen, e.g., -v -q, the verbose dominates
	var traceLevel = flag.Bool("v", false, "verbose off by default, TraceLevel")
	var infoLevel = flag.Bool("q", false, "quiet off by default, InfoLevel")
	var configPath = flag.String("config", "", "path to a YAML config file")

	flag.Parse()

	if *traceLevel {
		log.SetLevel(log.TraceLevel)
	} else if *infoLevel {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&logrus.TextFormatter{
		DisableQuote: true,
		ForceColors:  true,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Could not load config: %s", err)
	}
	if cfg.Log.Level != "" {
		level, _ := log.ParseLevel(cfg.Log.Level)
		log.SetLevel(level)
	}

	log.Info("Starting Bulb Emulator")
	log.Info("Service UUID: ", bluetooth.BulbServiceUUID)
	log.Info("Characteristics:")
	for _, c := range bluetooth.Characteristics {
		log.Infof("  %-8s %s", c.String()+":", c.UUID())
	}

	factory, err := cfg.FactoryCredential()
	if err != nil {
		log.Fatalf("Invalid factory credential: %s", err)
	}
	store, err := storage.Open(cfg.Storage.Dir, cfg.Storage.KeyringPassword, factory)
	if err != nil {
		log.Fatalf("Could not open storage: %s", err)
	}
	flash, err := storage.OpenFlash(filepath.Join(cfg.Storage.Dir, "flash"), cfg.Storage.PartitionSize)
	if err != nil {
		log.Fatalf("Could not open flash: %s", err)
	}
	if _, err := flash.ApplyPendingBoot(); err != nil {
		log.Errorf("Could not switch boot image: %s", err)
	}
	log.Infof("Running image from slot %s", flash.ActiveSlot())

	checkBootCount(store, cfg.Boot)

	cred, err := store.LoadCredential()
	if err != nil {
		log.Fatalf("Could not load credential: %s", err)
	}
	advState := bluetooth.AdvertisedUnpaired
	if cred.IsPaired() {
		advState = bluetooth.AdvertisedPaired
	}

	ble, err := bluetooth.New(cfg.Device.Adapter, cred.NameString(), advState)
	if err != nil {
		log.Fatalf("Could not start BLE: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := dispatcher.New(64)
	queue.Start(ctx)

	sinks := events.Multi{}
	var apiServer *api.Server
	if cfg.API.Port != 0 {
		apiServer = api.New()
		sinks = append(sinks, apiServer)
	}
	var natsPublisher *events.NATSPublisher
	if cfg.NATS.URL != "" {
		natsPublisher, err = events.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Errorf("Event publishing to NATS disabled: %s", err)
		} else {
			sinks = append(sinks, natsPublisher)
		}
	}

	reboots := make(rebooter, 1)
	router := handler.NewRouter(handler.Config{
		Queue:     queue,
		Store:     store,
		Transport: ble,
		Flash:     flash,
		Rebooter:  reboots,
		Sink:      sinks,
		OTAOptions: []ota.Option{
			ota.WithMaxErrors(cfg.OTA.MaxErrors),
			ota.WithInactivityTimeout(cfg.OTA.InactivityTimeout),
			ota.WithRebootDelay(cfg.OTA.RebootDelay),
		},
	})

	if apiServer != nil {
		apiServer.SetController(router)
		go func() {
			if err := apiServer.ListenAndServe(cfg.APIAddr()); err != nil {
				log.Errorf("HTTP server failed: %v", err)
			}
		}()
	}

	log.Infof("Advertising as %q, waiting for connections...", cred.NameString())

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case reason := <-reboots:
		log.Warnf("Rebooting: %s", reason)
		exitCode = rebootExitCode
	}

	ble.ShutdownConnection()
	queue.Stop()
	<-queue.Done()

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Debugf("HTTP shutdown: %v", err)
		}
		cancel()
	}
	if natsPublisher != nil {
		natsPublisher.Close()
	}

	os.Exit(exitCode)
}

// checkBootCount resets the credential after a run of quick power cycles. The
// counter is cleared once the emulator has stayed up for the settle time.
func checkBootCount(store *storage.Store, cfg config.BootConfig) {
	if cfg.FactoryResetBoots == 0 {
		return
	}

	count, err := store.IncrementBootCount()
	if err != nil {
		log.Errorf("Could not update boot count: %s", err)
		return
	}
	log.Debugf("Unsettled boot %d of %d", count, cfg.FactoryResetBoots)

	if int(count) >= cfg.FactoryResetBoots {
		log.Warnf("%d quick restarts, resetting credential", count)
		if err := store.ResetCredential(); err != nil {
			log.Errorf("Factory reset failed: %s", err)
		}
		if err := store.ClearBootCount(); err != nil {
			log.Errorf("Could not clear boot count: %s", err)
		}
		return
	}

	time.AfterFunc(cfg.Settle, func() {
		if err := store.ClearBootCount(); err != nil {
			log.Errorf("Could not clear boot count: %s", err)
		}
	})
}
