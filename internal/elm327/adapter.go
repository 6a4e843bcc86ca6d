package elm327

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

const (
	// defaultTimeout bounds a single request/response exchange.
	defaultTimeout = 5 * time.Second

	// minSlowTimeout applies to ATZ and the first bus request, which may
	// trigger a protocol search.
	minSlowTimeout = 10 * time.Second

	// defaultCommandDelay is the pause between two polling cycles.
	defaultCommandDelay = 250 * time.Millisecond

	// defaultHeader is the functional (broadcast) CAN request header.
	defaultHeader = "7DF"

	// callbackQueueSize is the buffer size for the response callback queue.
	callbackQueueSize = 100

	// callbackWorkerCount is the number of concurrent callback workers.
	callbackWorkerCount = 4

	// maxFastFrames is the largest response count the adapter accepts as a suffix.
	maxFastFrames = 0xF
)

// initSequence configures the adapter for parseable replies:
// echo, linefeeds and headers off, spaces on, automatic protocol.
var initSequence = []string{"ATE0", "ATL0", "ATS1", "ATH0", "ATSP0"}

// supportPIDs request the mode 01 support bitmaps, in order.
var supportPIDs = []byte{0x00, 0x20, 0x40, 0x60, 0x80, 0xA0, 0xC0}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures an Adapter.
type Options struct {
	// Open opens the transport. Required.
	Open Opener

	// Catalog lists the commands whose support is detected on Connect.
	// Default: obd.NewCatalog().
	Catalog *obd.Catalog

	// Timeout bounds each exchange. Default: 5 seconds.
	Timeout time.Duration

	// CommandDelay is the pause between polling cycles. Default: 250ms.
	CommandDelay time.Duration

	// Fast appends the learned response count to requests of commands
	// marked Fast, so the adapter answers without waiting for stragglers.
	Fast bool

	Logger Logger
}

// Stats holds operational statistics.
type Stats struct {
	Queries      uint64
	Errors       uint64
	Dropped      uint64 // responses dropped due to a full callback queue
	Version      string
	Protocol     string
	CarConnected bool
}

type watch struct {
	cmd       obd.Command
	callbacks []obd.Callback
}

type delivery struct {
	cb   obd.Callback
	resp obd.Response
}

// Adapter is an obd.Connection to an ELM327-compatible adapter.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Exchanges with the adapter are serialised; the polling loop and
//     Status checks interleave between requests.
//   - Callbacks run on a bounded worker pool; panics are recovered and logged.
type Adapter struct {
	open         Opener
	catalog      *obd.Catalog
	timeout      time.Duration
	commandDelay time.Duration
	fast         bool
	logger       Logger

	// ioMu guards the session and the adapter-side state it mutates.
	ioMu        sync.Mutex
	sess        *session
	header      string
	frameCounts map[obd.CommandID]int

	// portMu guards port alone so Stop can close it mid-exchange.
	portMu sync.Mutex
	port   Port

	stateMu      sync.RWMutex
	carConnected bool
	version      string
	protocol     string
	supported    []obd.CommandID

	watchMu sync.RWMutex
	watches []*watch
	byID    map[obd.CommandID]*watch

	callbackQueue chan delivery

	ctx    context.Context
	cancel context.CancelFunc

	started  atomic.Bool
	done     *closeOnce
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error

	queries atomic.Uint64
	errs    atomic.Uint64
	dropped atomic.Uint64
}

// Ensure Adapter implements obd.Connection.
var _ obd.Connection = (*Adapter)(nil)

// New creates an unconnected adapter.
func New(opts Options) *Adapter {
	if opts.Catalog == nil {
		opts.Catalog = obd.NewCatalog()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CommandDelay <= 0 {
		opts.CommandDelay = defaultCommandDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		open:          opts.Open,
		catalog:       opts.Catalog,
		timeout:       opts.Timeout,
		commandDelay:  opts.CommandDelay,
		fast:          opts.Fast,
		logger:        opts.Logger,
		frameCounts:   make(map[obd.CommandID]int),
		byID:          make(map[obd.CommandID]*watch),
		callbackQueue: make(chan delivery, callbackQueueSize),
		ctx:           ctx,
		cancel:        cancel,
		done:          newCloseOnce(),
	}
}

// Dialer returns an obd.Dialer creating a fresh adapter per call.
func Dialer(opts Options) obd.Dialer {
	return func() obd.Connection {
		return New(opts)
	}
}

// Connect opens the transport, initialises the adapter and detects the
// vehicle bus and its supported commands.
//
// A missing vehicle is not an error: the adapter stays usable and Status
// reports obd.StatusELMConnected.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.isClosed() {
		return ErrStopped
	}
	if a.open == nil {
		return fmt.Errorf("%w: no transport configured", obd.ErrConnectionFailed)
	}

	port, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", obd.ErrConnectionFailed, err)
	}

	// Unblock any pending read if the caller gives up.
	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()

	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	a.setPort(port)
	a.sess = newSession(port, a.timeout)
	a.header = defaultHeader

	if err := a.initialise(ctx); err != nil {
		_ = port.Close()
		a.setPort(nil)
		a.sess = nil
		return fmt.Errorf("%w: %w", obd.ErrConnectionFailed, err)
	}

	car := a.detectVehicle(ctx)
	supported := a.detectSupport(ctx, car)

	a.stateMu.Lock()
	a.carConnected = car
	a.supported = supported
	a.stateMu.Unlock()

	a.logInfo("adapter connected",
		"version", a.version,
		"protocol", a.protocol,
		"car_connected", car,
		"supported_commands", len(supported),
	)
	return nil
}

// initialise resets the adapter and applies initSequence. Caller holds ioMu.
func (a *Adapter) initialise(ctx context.Context) error {
	lines, err := a.sess.exchangeTimeout(ctx, "ATZ", max(a.timeout, minSlowTimeout))
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	for _, line := range lines {
		if strings.Contains(strings.ToUpper(line), "ELM") {
			a.stateMu.Lock()
			a.version = line
			a.stateMu.Unlock()
		}
	}

	for _, cmd := range initSequence {
		lines, err := a.sess.exchange(ctx, cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if !containsOK(lines) {
			return fmt.Errorf("%w: %s answered %q", ErrUnexpectedResponse, cmd, strings.Join(lines, " "))
		}
	}
	return nil
}

// detectVehicle sends the first bus request, letting the adapter search
// for a protocol. Caller holds ioMu.
func (a *Adapter) detectVehicle(ctx context.Context) bool {
	lines, err := a.sess.exchangeTimeout(ctx, "0100", max(a.timeout, minSlowTimeout))
	if err == nil {
		_, _, err = busPayload(supportCommand(0x00), lines)
	}
	if err != nil {
		a.logInfo("vehicle not responding", "error", err)
		return false
	}

	if lines, err := a.sess.exchange(ctx, "ATDPN"); err == nil && len(lines) > 0 {
		a.stateMu.Lock()
		a.protocol = lines[0]
		a.stateMu.Unlock()
	}
	return true
}

// detectSupport builds the supported command list. Adapter commands are
// always supported; mode 01 PIDs come from the support bitmaps; commands
// with a custom header or service are tried once. Caller holds ioMu.
func (a *Adapter) detectSupport(ctx context.Context, car bool) []obd.CommandID {
	var supported []obd.CommandID

	var pids map[byte]bool
	if car {
		pids = a.readSupportBitmaps(ctx)
	}

	for _, cmd := range a.catalog.All() {
		if cmd.IsAdapterCommand() {
			supported = append(supported, cmd.ID)
			continue
		}
		if !car {
			continue
		}

		mode, _ := cmd.Mode()
		pid, _ := cmd.PID()
		if mode == 0x01 && cmd.Header == "" {
			if pids[pid] {
				supported = append(supported, cmd.ID)
			}
			continue
		}

		if _, err := a.query(ctx, cmd); err != nil {
			a.logDebug("custom command not supported", "command", cmd.Name, "error", err)
			continue
		}
		supported = append(supported, cmd.ID)
	}
	return supported
}

// readSupportBitmaps follows the 0100, 0120, ... chain. Caller holds ioMu.
func (a *Adapter) readSupportBitmaps(ctx context.Context) map[byte]bool {
	pids := make(map[byte]bool)

	for _, base := range supportPIDs {
		if base != 0x00 && !pids[base] {
			break
		}
		payload, err := a.query(ctx, supportCommand(base))
		if err != nil {
			a.logDebug("support bitmap unavailable", "pid", fmt.Sprintf("%02X", base), "error", err)
			break
		}
		list, err := supportBitmap(base, payload)
		if err != nil {
			break
		}
		for _, p := range list {
			pids[p] = true
		}
	}
	return pids
}

// supportCommand is the mode 01 "PIDs supported" request for base.
func supportCommand(base byte) obd.Command {
	return obd.Command{
		Name:        fmt.Sprintf("PIDS_%02X", base),
		Bytes:       fmt.Sprintf("01%02X", base),
		ResponseLen: 4,
	}
}

// query sends cmd and returns its payload. Caller holds ioMu.
func (a *Adapter) query(ctx context.Context, cmd obd.Command) ([]byte, error) {
	if a.sess == nil {
		return nil, obd.ErrNotConnected
	}
	a.queries.Add(1)

	if !cmd.IsAdapterCommand() {
		if err := a.setHeader(ctx, cmd.Header); err != nil {
			a.errs.Add(1)
			return nil, err
		}
	}

	request := cmd.Bytes
	if a.fast && cmd.Fast && !cmd.IsAdapterCommand() {
		if n := a.frameCounts[cmd.ID]; n > 0 && n <= maxFastFrames {
			request += strings.ToUpper(strconv.FormatInt(int64(n), 16))
		}
	}

	lines, err := a.sess.exchange(ctx, request)
	if err != nil {
		a.errs.Add(1)
		return nil, err
	}

	if cmd.IsAdapterCommand() {
		payload, err := textPayload(cmd, lines)
		if err != nil {
			a.errs.Add(1)
		}
		return payload, err
	}

	payload, frames, err := busPayload(cmd, lines)
	if err != nil {
		a.errs.Add(1)
		return nil, err
	}
	if _, learned := a.frameCounts[cmd.ID]; cmd.Fast && !learned {
		a.frameCounts[cmd.ID] = frames
	}
	return payload, nil
}

// setHeader switches the CAN request header if needed. Caller holds ioMu.
func (a *Adapter) setHeader(ctx context.Context, header string) error {
	if header == "" {
		header = defaultHeader
	}
	if strings.EqualFold(header, a.header) {
		return nil
	}

	lines, err := a.sess.exchange(ctx, "ATSH"+header)
	if err != nil {
		return fmt.Errorf("set header %s: %w", header, err)
	}
	if !containsOK(lines) {
		return fmt.Errorf("%w: ATSH%s answered %q", ErrUnexpectedResponse, header, strings.Join(lines, " "))
	}
	a.header = header
	return nil
}

// Status checks the adapter with ATRV and, when a vehicle was detected,
// that the vehicle still answers.
func (a *Adapter) Status(ctx context.Context) (obd.Status, error) {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if a.sess == nil {
		return obd.StatusNotConnected, obd.ErrNotConnected
	}

	if _, err := a.sess.exchange(ctx, "ATRV"); err != nil {
		return obd.StatusNotConnected, err
	}

	a.stateMu.RLock()
	car := a.carConnected
	a.stateMu.RUnlock()
	if !car {
		return obd.StatusELMConnected, nil
	}

	if _, err := a.query(ctx, supportCommand(0x00)); err != nil {
		if errors.Is(err, obd.ErrConnectionFailed) {
			return obd.StatusNotConnected, err
		}
		a.logDebug("vehicle stopped answering", "error", err)
		return obd.StatusELMConnected, nil
	}
	return obd.StatusCarConnected, nil
}

// Supported returns the commands detected on Connect.
func (a *Adapter) Supported() []obd.CommandID {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return append([]obd.CommandID(nil), a.supported...)
}

// Watch registers cb for responses to cmd. Several callbacks may watch
// the same command; it is still queried once per cycle.
func (a *Adapter) Watch(cmd obd.Command, cb obd.Callback) {
	if cb == nil {
		return
	}
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	w, ok := a.byID[cmd.ID]
	if !ok {
		w = &watch{cmd: cmd}
		a.byID[cmd.ID] = w
		a.watches = append(a.watches, w)
	}
	w.callbacks = append(w.callbacks, cb)
}

// Start launches the polling loop and callback workers. Calling it again,
// or after Stop, has no effect.
func (a *Adapter) Start() {
	if a.isClosed() || !a.started.CompareAndSwap(false, true) {
		return
	}

	for range callbackWorkerCount {
		a.wg.Add(1)
		go a.callbackWorker()
	}
	a.wg.Add(1)
	go a.pollLoop()
}

// Stop halts polling, waits for in-flight callbacks and closes the
// transport. Safe to call multiple times.
func (a *Adapter) Stop() error {
	a.stopOnce.Do(func() {
		a.done.Close()
		a.cancel()

		// Closing the port unblocks an exchange in progress.
		if port := a.setPort(nil); port != nil {
			a.stopErr = port.Close()
		}

		a.wg.Wait()

		a.ioMu.Lock()
		a.sess = nil
		a.ioMu.Unlock()
	})
	return a.stopErr
}

// setPort replaces the port and returns the previous one.
func (a *Adapter) setPort(p Port) Port {
	a.portMu.Lock()
	defer a.portMu.Unlock()
	prev := a.port
	a.port = p
	return prev
}

// Stats returns operational statistics.
func (a *Adapter) Stats() Stats {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return Stats{
		Queries:      a.queries.Load(),
		Errors:       a.errs.Load(),
		Dropped:      a.dropped.Load(),
		Version:      a.version,
		Protocol:     a.protocol,
		CarConnected: a.carConnected,
	}
}
