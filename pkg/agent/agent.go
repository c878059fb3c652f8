// Package agent wires the HID driver core to the host environment: it
// owns the OS backend, the hot-plug monitor, the configured device
// set and the persistence of device sightings.
package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/kingcoyote/hid/hiddev"
	"github.com/kingcoyote/hid/internal/configsvc"
	"github.com/kingcoyote/hid/internal/devstore"
	"github.com/kingcoyote/hid/internal/hidhost"
	"github.com/kingcoyote/hid/internal/hotplug"
	"github.com/kingcoyote/hid/pkg/bus"
)

type Agent struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	store     *devstore.Store
	configSvc *configsvc.Service
	registry  *hiddev.Registry
	eventBus  *EventBus

	mu      sync.Mutex
	host    hidhost.Host
	devices map[hiddev.Identity]*managedDevice
}

type managedDevice struct {
	dev  *hiddev.Device
	name string
}

func NewAgent(config Config) (*Agent, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}
	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &Agent{
		config:    config,
		log:       logger,
		db:        db,
		store:     devstore.New(db, time.Now),
		configSvc: configsvc.New(logger.Named("config")),
		registry:  hiddev.NewRegistry(),
		eventBus:  bus.NewBus[hiddev.Identity, Event](logger.Named("bus")),
		devices:   make(map[hiddev.Identity]*managedDevice),
	}, nil
}

func (a *Agent) Close() error {
	a.mu.Lock()
	for id, md := range a.devices {
		md.dev.Dispose()
		delete(a.devices, id)
	}
	a.mu.Unlock()
	return a.db.Close()
}

// Run starts the agent and blocks until the context is cancelled. The
// device set follows the devices file; edits apply without a restart.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	if err := a.eventBus.Start(groupCtx); err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}

	select {
	case <-groupCtx.Done():
		return group.Wait()
	case <-a.configSvc.Ready():
	}

	cfg, err := configsvc.Register(a.configSvc, a.config.DevicesConfig, DevicesConfig{}, func(cfg DevicesConfig, err error) {
		if err != nil {
			a.log.Error("failed to reload devices config", zap.Error(err))
			return
		}
		a.reconcile(groupCtx, cfg)
	})
	if err != nil {
		return fmt.Errorf("failed to register devices config: %w", err)
	}

	host, err := hidhost.New(cfg.Backend)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.host = host
	a.mu.Unlock()
	a.reconcile(groupCtx, cfg)

	monitor := hotplug.New(a.log.Named("hotplug"), a.registry.Notify,
		hotplug.WithPollInterval(cfg.pollInterval()))
	group.Go(func() error {
		return monitor.Run(groupCtx)
	})

	a.log.Info("Agent started", zap.Int("devices", len(cfg.Devices)))
	if err := group.Wait(); err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

// reconcile aligns the managed device set with the configuration:
// new entries are constructed and registered, dropped entries are
// disposed. Backend changes require a restart and are ignored here.
func (a *Agent) reconcile(ctx context.Context, cfg DevicesConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.host == nil {
		// startup: the initial reconcile follows once the backend is up
		return
	}

	desired := make(map[hiddev.Identity]string, len(cfg.Devices))
	for _, entry := range cfg.Devices {
		desired[entry.ID] = entry.Name
	}

	for id, md := range a.devices {
		if _, ok := desired[id]; !ok {
			a.log.Info("dropping device", zap.String("device", id.String()))
			md.dev.Dispose()
			delete(a.devices, id)
		}
	}

	for id, name := range desired {
		if md, ok := a.devices[id]; ok {
			md.name = name
			continue
		}
		a.devices[id] = a.manage(ctx, id, name)
		a.log.Info("managing device", zap.String("device", id.String()), zap.String("name", name))
	}
}

func (a *Agent) manage(ctx context.Context, id hiddev.Identity, name string) *managedDevice {
	dev := hiddev.New(a.host, id,
		hiddev.WithLogger(a.log.Named("device")),
		hiddev.WithMatch(a.host.Match),
		hiddev.WithRegistry(a.registry),
	)
	publish := a.eventBus.CreatePublisher(id)
	event := func(typ EventType, data []byte) Event {
		return Event{
			Identity: id,
			ID:       id.String(),
			Name:     name,
			Type:     typ,
			Data:     data,
			Time:     time.Now(),
		}
	}

	dev.OnArrived(func() {
		if _, err := a.store.Touch(id, name); err != nil {
			a.log.Warn("failed to record device sighting", zap.Error(err))
		}
		publish(ctx, event(EventArrived, nil))
	})
	dev.OnRemoved(func() {
		publish(ctx, event(EventRemoved, nil))
	})
	dev.OnDataReceived(func(r *hiddev.Report) {
		// the report buffer is only valid during the handler
		publish(ctx, event(EventReceived, append([]byte(nil), r.Bytes()...)))
	})
	dev.OnDataSend(func(r *hiddev.Report) {
		publish(ctx, event(EventSent, append([]byte(nil), r.Bytes()...)))
	})
	return &managedDevice{dev: dev, name: name}
}

// Events subscribes to the agent's event stream. The subscription ends
// with the context.
func (a *Agent) Events(ctx context.Context) <-chan EventMessage {
	return a.eventBus.Subscribe(ctx)
}

// Device returns the managed device for an identity, if any.
func (a *Agent) Device(id hiddev.Identity) (*hiddev.Device, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	md, ok := a.devices[id]
	if !ok {
		return nil, false
	}
	return md.dev, true
}

// Sightings returns the persisted first/last-seen records.
func (a *Agent) Sightings() ([]devstore.Record, error) {
	return a.store.List()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}
