package graceful

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tenantgate/pkg/log"
)

const defaultTimeout = 5 * time.Second

type manager struct {
	mu       sync.Mutex
	services []Service
	timeout  time.Duration
	log      log.Logger
}

type Option func(*manager)

func WithTimeout(timeout time.Duration) Option {
	return func(m *manager) {
		m.timeout = timeout
	}
}

func WithLogger(logger log.Logger) Option {
	return func(m *manager) {
		m.log = logger
	}
}

func NewManager(opts ...Option) Manager {
	m := &manager{
		timeout: defaultTimeout,
		log:     log.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *manager) Register(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
}

func (m *manager) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.log.Infof("Received signal: %v", sig)
	case <-ctx.Done():
		m.log.Info("Shutdown externally triggered")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	return m.Stop(stopCtx)
}

func (m *manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	services := make([]Service, len(m.services))
	copy(services, m.services)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(services))

	for _, svc := range services {
		wg.Add(1)
		go func(s Service) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				errCh <- fmt.Errorf("service %s failed to stop: %w", s, err)
				m.log.Errorf("Service %s failed to stop: %v", s, err)
			} else {
				m.log.Infof("Service %s stopped", s)
			}
		}(svc)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
