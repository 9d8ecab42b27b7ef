// Package listener owns the loopback HTTP endpoints of the sidecar. A
// Listener tries its default port first and falls back to random ports in a
// fixed range, never retrying a port that already failed.
package listener

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	durable "github.com/goliatone/go-durable"
)

const (
	DefaultPort       = 4001
	LegacyDefaultPort = 17071
	MinPort           = 30000
	MaxPort           = 31000
	MaxAttempts       = 10

	loopbackHost = "127.0.0.1"
)

// ListenFunc opens a network listener. net.Listen satisfies it.
type ListenFunc func(network, address string) (net.Listener, error)

// Listener serves one handler on a loopback port.
type Listener struct {
	name        string
	hubName     string
	handler     http.Handler
	logger      durable.Logger
	defaultPort int
	minPort     int
	maxPort     int
	maxAttempts int
	listen      ListenFunc
	intn        func(n int) int

	readHeaderTimeout time.Duration

	mu      sync.Mutex
	server  *http.Server
	address string
	port    int
	failed  map[int]struct{}
	served  chan struct{}
	cancel  context.CancelFunc
}

type Option func(*Listener)

// WithName labels the endpoint in log output.
func WithName(name string) Option {
	return func(l *Listener) {
		if name != "" {
			l.name = name
		}
	}
}

func WithHubName(hub string) Option {
	return func(l *Listener) {
		l.hubName = hub
	}
}

func WithLogger(logger durable.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithDefaultPort(port int) Option {
	return func(l *Listener) {
		if port > 0 {
			l.defaultPort = port
		}
	}
}

// WithPortRange sets the fallback range [min, max).
func WithPortRange(min, max int) Option {
	return func(l *Listener) {
		if min > 0 && max > min {
			l.minPort = min
			l.maxPort = max
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(l *Listener) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithListenFunc replaces net.Listen.
func WithListenFunc(fn ListenFunc) Option {
	return func(l *Listener) {
		if fn != nil {
			l.listen = fn
		}
	}
}

// WithRandom replaces the fallback port generator. fn returns a value in [0, n).
func WithRandom(fn func(n int) int) Option {
	return func(l *Listener) {
		if fn != nil {
			l.intn = fn
		}
	}
}

func WithReadHeaderTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.readHeaderTimeout = d
		}
	}
}

func New(handler http.Handler, opts ...Option) *Listener {
	l := &Listener{
		name:              "rpc",
		handler:           handler,
		logger:            durable.NewFmtLogger(nil),
		defaultPort:       DefaultPort,
		minPort:           MinPort,
		maxPort:           MaxPort,
		maxAttempts:       MaxAttempts,
		listen:            net.Listen,
		intn:              rand.IntN,
		readHeaderTimeout: 10 * time.Second,
		failed:            make(map[int]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Start binds a port and begins serving. The first attempt uses the default
// port; later attempts draw from the fallback range. Failing every attempt
// returns ErrUnableToBind.
func (l *Listener) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.server != nil {
		return durable.NewError(durable.ErrInvalidRequest, fmt.Sprintf("%s endpoint already started", l.name), nil,
			map[string]any{"address": l.address})
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		port := l.defaultPort
		if attempt > 1 {
			next, ok := l.randomPortLocked()
			if !ok {
				break
			}
			port = next
		}

		ln, err := l.listen("tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			l.failed[port] = struct{}{}
			l.log(map[string]any{
				"port":    port,
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn(fmt.Sprintf("failed to open local port %d, this was attempt #%d to open a local port", port, attempt))
			continue
		}

		l.serveLocked(ctx, ln, port)
		l.log(map[string]any{"address": l.address}).Info(fmt.Sprintf("opened local %s endpoint: %s", l.name, l.address))
		return nil
	}

	return durable.NewError(durable.ErrUnableToBind,
		fmt.Sprintf("unable to find a port to open the %s endpoint on after %d attempts", l.name, l.maxAttempts),
		lastErr,
		map[string]any{"attempts": l.maxAttempts, "failed_ports": l.failedPortsLocked()})
}

func (l *Listener) serveLocked(ctx context.Context, ln net.Listener, port int) {
	// request contexts outlive the Start ctx and end when Stop gives up
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	server := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: l.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	served := make(chan struct{})

	l.server = server
	l.cancel = cancel
	l.port = port
	l.address = "http://" + ln.Addr().String()
	l.served = served

	go func() {
		defer close(served)
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			l.log(map[string]any{"error": err.Error()}).Error(fmt.Sprintf("%s endpoint stopped serving", l.name))
		}
	}()
}

// randomPortLocked picks a port from the fallback range that has not failed.
func (l *Listener) randomPortLocked() (int, bool) {
	span := l.maxPort - l.minPort
	if span <= 0 {
		return 0, false
	}
	failedInRange := 0
	for p := range l.failed {
		if p >= l.minPort && p < l.maxPort {
			failedInRange++
		}
	}
	if failedInRange >= span {
		return 0, false
	}
	for {
		port := l.minPort + l.intn(span)
		if _, failed := l.failed[port]; !failed {
			return port, true
		}
	}
}

// Stop shuts the server down, waiting for in-flight requests until ctx is
// done. Requests still running at that point have their contexts canceled
// and their connections closed, and Stop returns the ctx error.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	server := l.server
	address := l.address
	served := l.served
	cancel := l.cancel
	l.server = nil
	l.cancel = nil
	l.mu.Unlock()

	if server == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	l.log(map[string]any{"address": address}).Info(fmt.Sprintf("closing local %s endpoint: %s", l.name, address))
	err := server.Shutdown(ctx)
	cancel()
	if err != nil {
		l.log(map[string]any{"address": address, "error": err.Error()}).
			Warn(fmt.Sprintf("%s endpoint did not drain in time, closing active connections", l.name))
		_ = server.Close()
	}
	<-served
	return err
}

// Address returns the listen URL, or "" before Start succeeds.
func (l *Listener) Address() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.address
}

// Port returns the bound port, or 0 before Start succeeds.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// FailedPorts lists the ports that could not be bound, sorted.
func (l *Listener) FailedPorts() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failedPortsLocked()
}

func (l *Listener) failedPortsLocked() []int {
	ports := make([]int, 0, len(l.failed))
	for p := range l.failed {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

func (l *Listener) log(fields map[string]any) durable.Logger {
	fields["endpoint"] = l.name
	if l.hubName != "" {
		fields["hub"] = l.hubName
	}
	return durable.WithLoggerFields(l.logger, fields)
}
