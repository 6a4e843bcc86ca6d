package elm327

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/obd2mqtt/internal/obd"
)

// pollLoop queries every watched command in turn until Stop.
func (a *Adapter) pollLoop() {
	defer a.wg.Done()

	for {
		for _, w := range a.watchList() {
			if a.isClosed() {
				return
			}
			a.poll(w)
		}

		timer := time.NewTimer(a.commandDelay)
		select {
		case <-a.done.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// poll queries one watched command and dispatches the response.
func (a *Adapter) poll(w watch) {
	a.ioMu.Lock()
	payload, err := a.query(a.ctx, w.cmd)
	a.ioMu.Unlock()

	if err != nil {
		if a.isClosed() {
			return
		}
		if errors.Is(err, obd.ErrConnectionFailed) {
			a.logWarn("query failed", "command", w.cmd.Name, "error", err)
		} else {
			a.logDebug("query returned no value", "command", w.cmd.Name, "error", err)
		}
		return
	}

	resp := obd.Response{
		Command: w.cmd,
		Payload: payload,
		Time:    time.Now(),
	}
	for _, cb := range w.callbacks {
		a.dispatch(delivery{cb: cb, resp: resp})
	}
}

// watchList snapshots the watches.
func (a *Adapter) watchList() []watch {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	list := make([]watch, len(a.watches))
	for i, w := range a.watches {
		list[i] = watch{cmd: w.cmd, callbacks: append([]obd.Callback(nil), w.callbacks...)}
	}
	return list
}

// dispatch queues a delivery for the worker pool, dropping it when the
// queue is full.
func (a *Adapter) dispatch(d delivery) {
	select {
	case a.callbackQueue <- d:
	default:
		a.dropped.Add(1)
		a.logWarn("callback queue full, dropping response", "command", d.resp.Command.Name)
	}
}

// callbackWorker runs callbacks from the queue.
// Runs in a bounded worker pool to prevent goroutine explosion.
func (a *Adapter) callbackWorker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.done.Done():
			a.drainCallbackQueue()
			return
		case d := <-a.callbackQueue:
			a.runCallback(d)
		}
	}
}

func (a *Adapter) runCallback(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			a.logError("response callback panic", fmt.Errorf("%v", r), "command", d.resp.Command.Name)
		}
	}()
	d.cb(d.resp)
}

// drainCallbackQueue discards queued deliveries during shutdown.
func (a *Adapter) drainCallbackQueue() {
	for {
		select {
		case <-a.callbackQueue:
		default:
			return
		}
	}
}

func (a *Adapter) isClosed() bool {
	select {
	case <-a.done.Done():
		return true
	default:
		return false
	}
}

func containsOK(lines []string) bool {
	for _, line := range lines {
		if line == "OK" {
			return true
		}
	}
	return false
}

func (a *Adapter) logDebug(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, keysAndValues...)
	}
}

func (a *Adapter) logInfo(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Info(msg, keysAndValues...)
	}
}

func (a *Adapter) logWarn(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, keysAndValues...)
	}
}

func (a *Adapter) logError(msg string, err error, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
