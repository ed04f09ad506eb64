// Package monitor keeps an eye on the bus: a cron-scheduled id sweep and a
// periodic sampler that sync-reads one register from every known servo.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dynaflow/dynaflow/internal/config"
	"github.com/dynaflow/dynaflow/internal/hal"
	"github.com/dynaflow/dynaflow/internal/logger"
	"github.com/dynaflow/dynaflow/internal/storage"
	"github.com/dynaflow/dynaflow/internal/telemetry"
	"github.com/dynaflow/dynaflow/internal/websocket"
)

// Monitor periodically scans and samples the bus.
type Monitor struct {
	bus   *hal.Bus
	store storage.Storage
	hub   *websocket.Hub
	pub   *telemetry.Publisher

	scanFrom  uint8
	scanTo    uint8
	register  string
	interval  time.Duration
	retention time.Duration

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	known []uint8
}

// New assembles a monitor. store, hub and pub may be nil; the monitor then
// skips the corresponding sink.
func New(b *hal.Bus, store storage.Storage, hub *websocket.Hub, pub *telemetry.Publisher,
	busCfg config.BusConfig, cfg config.MonitorConfig, storageCfg config.StorageConfig) *Monitor {

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		bus:       b,
		store:     store,
		hub:       hub,
		pub:       pub,
		scanFrom:  uint8(busCfg.ScanFrom),
		scanTo:    uint8(busCfg.ScanTo),
		register:  cfg.SampleRegister,
		interval:  time.Duration(cfg.SampleInterval) * time.Millisecond,
		retention: time.Duration(storageCfg.RetentionDays) * 24 * time.Hour,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs an initial scan, schedules recurring ones and launches the
// sampler loop.
func (m *Monitor) Start(scanCron string) error {
	if _, err := m.cron.AddFunc(scanCron, m.runScan); err != nil {
		return fmt.Errorf("bad scan schedule %q: %w", scanCron, err)
	}
	if m.retention > 0 {
		if _, err := m.cron.AddFunc("@daily", m.prune); err != nil {
			return fmt.Errorf("failed to schedule pruning: %w", err)
		}
	}
	m.cron.Start()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runScan()
		m.sampleLoop()
	}()

	return nil
}

// Stop halts scheduling and waits for the sampler to exit.
func (m *Monitor) Stop() {
	m.cancel()
	m.cron.Stop()
	m.wg.Wait()
}

// Known returns the servo ids found by the most recent scan.
func (m *Monitor) Known() []uint8 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint8, len(m.known))
	copy(ids, m.known)
	return ids
}

func (m *Monitor) runScan() {
	log := logger.WithComponent("monitor")

	found, err := m.bus.Scan(m.scanFrom, m.scanTo)
	if err != nil {
		log.Error("bus scan failed", zap.Error(err))
		return
	}
	log.Info("bus scan complete", zap.Int("servos", len(found)))

	m.mu.Lock()
	m.known = found
	m.mu.Unlock()

	scan := storage.Scan{Found: found, ScannedAt: time.Now()}
	if m.store != nil {
		if err := m.store.SaveScan(scan); err != nil {
			log.Warn("failed to persist scan", zap.Error(err))
		}
	}
	if m.hub != nil {
		m.hub.Broadcast(websocket.MessageTypeScan, map[string]interface{}{
			"found": found,
		})
	}
	m.pub.PublishScan(scan)
}

func (m *Monitor) sampleLoop() {
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	ids := m.Known()
	if len(ids) == 0 {
		return
	}
	log := logger.WithComponent("monitor")

	readings, err := m.bus.SyncRead(ids, m.register)
	if err != nil {
		log.Error("sample failed", zap.Error(err))
		return
	}
	if len(readings) < len(ids) {
		log.Warn("servos missed the sample window",
			zap.Int("expected", len(ids)), zap.Int("answered", len(readings)))
	}

	now := time.Now()
	for _, r := range readings {
		sample := storage.Sample{
			ServoID:  r.ID,
			Register: m.register,
			Value:    r.Value,
			TakenAt:  now,
		}
		if m.store != nil {
			if err := m.store.SaveSample(sample); err != nil {
				log.Warn("failed to persist sample", zap.Error(err))
			}
		}
		if m.hub != nil {
			m.hub.Broadcast(websocket.MessageTypeSample, map[string]interface{}{
				"servo_id": r.ID,
				"register": m.register,
				"value":    r.Value,
			})
		}
		m.pub.PublishSample(sample)
	}
}

func (m *Monitor) prune() {
	if m.store == nil {
		return
	}
	if err := m.store.Prune(time.Now().Add(-m.retention)); err != nil {
		logger.WithComponent("monitor").Warn("failed to prune telemetry", zap.Error(err))
	}
}
