package jobqueue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultWorkerCount = 5

	// Ticker defaults, overridable through env.
	DefaultExpirySweepInterval  = 24 * time.Hour
	DefaultStalePendingInterval = 30 * time.Minute
	DefaultStalePendingAge      = 15 * time.Minute
	stalePendingBatchSize       = 100
)

// Manager manages the global job queue and background billing tasks
type Manager struct {
	queue              *Queue
	expirySweepTicker  *time.Ticker
	stalePendingTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = &Manager{
			queue:  NewQueue(workerCountFromEnv()),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted
	// safely. Workers receive the channel as an argument so a later restart
	// swapping the field cannot race their select loops.
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	sweepInterval := intervalFromEnv("EXPIRY_SWEEP_INTERVAL_MINUTES", DefaultExpirySweepInterval)
	m.expirySweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.expirySweepWorker(sweepInterval, stopCh)

	scanInterval := intervalFromEnv("STALE_PENDING_SCAN_INTERVAL_MINUTES", DefaultStalePendingInterval)
	m.stalePendingTicker = time.NewTicker(scanInterval)
	m.wg.Add(1)
	go m.stalePendingWorker(scanInterval, stopCh)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.expirySweepTicker != nil {
		m.expirySweepTicker.Stop()
	}
	if m.stalePendingTicker != nil {
		m.stalePendingTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// expirySweepWorker periodically downgrades subscriptions whose validity
// window elapsed.
func (m *Manager) expirySweepWorker(interval time.Duration, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started expiry sweep worker (interval: %s)", interval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Expiry sweep worker stopping")
			return
		case <-m.expirySweepTicker.C:
			if err := m.runExpirySweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Expiry sweep error: %v", err)
			}
		}
	}
}

// stalePendingWorker periodically enqueues reconciliation jobs for payments
// that stayed pending past the staleness cutoff. This is the compensating
// path for webhook deliveries lost to transient failures.
func (m *Manager) stalePendingWorker(interval time.Duration, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started stale pending worker (interval: %s)", interval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Stale pending worker stopping")
			return
		case <-m.stalePendingTicker.C:
			if err := m.enqueueStalePendingOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Stale pending scan error: %v", err)
			}
		}
	}
}

func (m *Manager) runExpirySweepOnce() error {
	svc := newBackgroundBillingService()
	count, err := svc.ExpireLapsedSubscriptions(context.Background())
	if count > 0 {
		log.Infof("[JobQueue Manager] Expiry sweep downgraded %d subscriptions", count)
	}
	return err
}

func (m *Manager) enqueueStalePendingOnce() error {
	svc := newBackgroundBillingService()
	age := intervalFromEnv("STALE_PENDING_AGE_MINUTES", DefaultStalePendingAge)
	cutoff := time.Now().Add(-age)

	payments, err := svc.ListStalePendingPayments(context.Background(), cutoff, stalePendingBatchSize)
	if err != nil {
		return err
	}
	for _, p := range payments {
		payload := ReconcilePaymentJobPayload{Reference: p.Reference, UserID: p.UserID}
		if _, err := m.queue.EnqueueJob(JobTypeReconcilePayment, payload.ToMap()); err != nil {
			return err
		}
	}
	if len(payments) > 0 {
		log.Infof("[JobQueue Manager] Enqueued %d stale pending payments for reconciliation", len(payments))
	}
	return nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunExpirySweepOnce exposes a manual trigger for a single sweep (admin use).
func (m *Manager) RunExpirySweepOnce() error {
	return m.runExpirySweepOnce()
}

func workerCountFromEnv() int {
	if v := env.GetEnv("JOBQUEUE_WORKER_COUNT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultWorkerCount
}

func intervalFromEnv(key string, fallback time.Duration) time.Duration {
	if v := env.GetEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return fallback
}
