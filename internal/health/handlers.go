package health

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/noah-isme/toko-cart/internal/common"
)

const defaultProbeTimeout = 500 * time.Millisecond

var draining atomic.Bool

// SetReady toggles readiness. main clears it on SIGTERM so the load balancer
// stops routing new carts here before the server drains.
func SetReady(v bool) {
	draining.Store(!v)
}

// Probe checks a single dependency.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

// Report is the body of /health/ready.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Handler serves the liveness and readiness endpoints.
type Handler struct {
	Probes []Probe
}

func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently and answers 503 if any fails or the
// process is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.Probes))
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed atomic.Bool
	)
	for _, p := range h.Probes {
		if p.Check == nil {
			continue
		}
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			result := "ok"
			if err := p.run(r.Context()); err != nil {
				failed.Store(true)
				result = err.Error()
			}
			mu.Lock()
			checks[p.Name] = result
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	report := Report{Status: "ready", Checks: checks}
	status := http.StatusOK
	if draining.Load() {
		report.Status = "draining"
		status = http.StatusServiceUnavailable
	} else if failed.Load() {
		report.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, report)
}

func (p Probe) run(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Check(ctx)
}

// Postgres pings the pool.
func Postgres(pool *pgxpool.Pool) Probe {
	return Probe{Name: "postgres", Check: pool.Ping}
}

// Redis pings the client holding carts and locks.
func Redis(client *redis.Client) Probe {
	return Probe{Name: "redis", Timeout: 300 * time.Millisecond, Check: func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}}
}

// Kafka succeeds once any broker accepts a connection.
func Kafka(brokers []string) Probe {
	return Probe{Name: "kafka", Timeout: time.Second, Check: func(ctx context.Context) error {
		errs := make([]error, 0, len(brokers))
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err == nil {
				return conn.Close()
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return errors.New("no brokers configured")
		}
		return errors.Join(errs...)
	}}
}
