package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/nerrad567/blegate/migrations"

	"github.com/nerrad567/blegate/internal/api"
	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/device"
	"github.com/nerrad567/blegate/internal/infrastructure/config"
	"github.com/nerrad567/blegate/internal/infrastructure/database"
	"github.com/nerrad567/blegate/internal/infrastructure/influxdb"
	"github.com/nerrad567/blegate/internal/infrastructure/logging"
	"github.com/nerrad567/blegate/internal/infrastructure/mqtt"
	"github.com/nerrad567/blegate/internal/metrics"
	"github.com/nerrad567/blegate/internal/presence"
	"github.com/nerrad567/blegate/internal/publisher"
	"github.com/nerrad567/blegate/internal/telemetry"
)

// Listener queue sizes. The WebSocket hub sees every packet, so it gets
// the larger buffer.
const (
	storeQueueSize     = 256
	publishQueueSize   = 256
	telemetryQueueSize = 1024
	hubQueueSize       = 1024
)

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to config.yaml
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting blegate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", db.Path())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)

	// Metrics are optional; the manager is the presence observer.
	var (
		metricsMgr *metrics.Manager
		observer   presence.Observer
	)
	if cfg.Metrics.Enabled {
		metricsMgr = metrics.NewManager(metrics.WithRuntimeCollectors())
		observer = metricsMgr
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	qos := byte(cfg.MQTT.QoS)
	svc := presence.NewService(presence.ServiceOptions{
		Topic:       cfg.Gateway.Topic,
		QoS:         qos,
		IdleTimeout: cfg.IdleTimeout(),
		AutoLearn:   cfg.Gateway.AutoLearn,
		InboxSize:   cfg.Gateway.InboxSize,
		Transport:   mqttClient,
		Logger:      log.Component("presence"),
		Observer:    observer,
	})
	table := svc.Table()
	dispatcher := svc.Dispatcher()

	// Listeners are attached before preload so registrations reach them.
	// Everything that does I/O goes through an AsyncListener; they are
	// closed after the service stops.
	var asyncs []*presence.AsyncListener
	defer func() {
		for _, a := range asyncs {
			a.Close()
		}
	}()
	attach := func(name string, size int, state presence.StateListener, events presence.Subscriber) {
		a := presence.NewAsyncListener(name, size, log, state, events)
		asyncs = append(asyncs, a)
		if state != nil {
			table.AddListener(a)
		}
		if events != nil {
			dispatcher.Subscribe(a)
		}
		if metricsMgr != nil {
			if err := metricsMgr.TrackListener(name, a.Dropped); err != nil {
				log.Warn("listener metrics not registered", "listener", name, "error", err)
			}
		}
	}

	attach("device_store", storeQueueSize, device.NewRecorder(deviceRepo, log.Component("device")), nil)

	var statePub *publisher.StatePublisher
	if cfg.Gateway.PublishState {
		statePub = publisher.NewStatePublisher(mqttClient, qos, log.Component("publisher"))
		attach("mqtt_state", publishQueueSize, statePub, nil)
	}

	if influxClient != nil {
		sink := telemetry.NewSink(influxClient)
		sink.Packets = cfg.InfluxDB.Packets
		attach("influxdb", telemetryQueueSize, sink, sink)
	}

	if metricsMgr != nil {
		table.AddListener(metricsMgr)
		dispatcher.Subscribe(metricsMgr)
		if err := metricsMgr.TrackTable(table); err != nil {
			log.Warn("table metrics not registered", "error", err)
		}
	}

	// API server (optional)
	var server *api.Server
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		server, err = api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log.Component("api"),
			Presence:    table,
			Seen:        svc.Registry(),
			Devices:     deviceRepo,
			Metrics:     metricsMgr,
			MetricsPath: cfg.Metrics.Path,
			Checks:      checks,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		hub := server.Hub()
		attach("websocket", hubQueueSize, hub, hub)
	}

	// Configured devices first, so a learned key that is also preloaded
	// keeps its preload source.
	entries := beacon.ParsePreloadIBeacon(cfg.Gateway.PreloadIBeacon)
	rawKeys := beacon.ParsePreloadKeys(cfg.Gateway.PreloadKeys)
	preloaded := svc.Preload(entries, rawKeys)

	learned, err := deviceRepo.ListLearnedKeys(ctx)
	if err != nil {
		return fmt.Errorf("loading learned devices: %w", err)
	}
	restored := svc.Restore(learned)
	log.Info("devices loaded", "preloaded", preloaded, "restored", restored)

	// Retained state topics are republished after a broker reconnect.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if statePub != nil {
			now := time.Now()
			n := statePub.PublishSnapshot(table.Snapshot(now), now)
			log.Info("state snapshot republished", "devices", n)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting presence service: %w", err)
	}
	defer func() {
		if stopErr := svc.Stop(); stopErr != nil {
			log.Error("error stopping presence service", "error", stopErr)
		}
	}()

	if server != nil {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if interval := cfg.HealthInterval(); interval > 0 {
		reporter := publisher.NewHealthReporter(publisher.HealthReporterConfig{
			Version:   version,
			Interval:  interval,
			QoS:       qos,
			Publisher: mqttClient,
			Counter:   table,
		})
		reporter.SetLogger(log.Component("health"))
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	// The pruner must finish before the database closes.
	var wg sync.WaitGroup
	pruneCtx, stopPruner := context.WithCancel(ctx)
	defer func() {
		stopPruner()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		retention := time.Duration(cfg.Database.HistoryRetention) * 24 * time.Hour
		device.RunPruner(pruneCtx, deviceRepo, retention, 0, log.Component("device"))
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: pruner, health reporter, API
	// server, presence service, listeners, InfluxDB, MQTT, database.
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// Compile-time checks that the infrastructure satisfies the consumers.
var (
	_ presence.Transport  = (*mqtt.Client)(nil)
	_ publisher.Publisher = (*mqtt.Client)(nil)
	_ telemetry.Writer    = (*influxdb.Client)(nil)
	_ api.PresenceView    = (*presence.Table)(nil)
	_ api.DeviceStore     = (*device.SQLiteRepository)(nil)
	_ api.SeenIndex       = (*presence.Registry)(nil)
	_ publisher.Counter   = (*presence.Table)(nil)
)
