package minidrive

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sync"
	"time"
)

const autoStopDelay = 4 * time.Second

type pendingStop struct {
	timer *clock.Timer
	stop  Message
}

// TimedCommandHandler sends actuator commands whose motion must stop on its
// own if the operator never says so: every issued command arms a timer that
// fires the paired stop frame. A newer command for the same class replaces
// the pending timer, so the last command wins.
type TimedCommandHandler struct {
	mu        sync.Mutex
	clk       clock.Clock
	transport Transport
	pending   map[string]pendingStop
}

func NewTimedCommandHandler(clk clock.Clock, transport Transport) *TimedCommandHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &TimedCommandHandler{
		clk:       clk,
		transport: transport,
		pending:   make(map[string]pendingStop),
	}
}

// Issue sends the action frame and arms the auto-stop timer for its class.
// The timer arms even when the send fails; the error is still returned.
func (h *TimedCommandHandler) Issue(class string, action, stop Message) error {
	h.mu.Lock()
	if p, ok := h.pending[class]; ok {
		p.timer.Stop()
	}
	var timer *clock.Timer
	timer = h.clk.AfterFunc(autoStopDelay, func() {
		h.autoStop(class, timer, stop)
	})
	h.pending[class] = pendingStop{timer: timer, stop: stop}
	h.mu.Unlock()

	log.WithField("class", class).WithField("canID", action.ID).Debug("issuing timed command")
	if err := h.transport.Send(action); err != nil {
		return errors.Wrapf(err, "unable to send %s command", class)
	}
	return nil
}

// Stop cancels the pending timer for the class and sends the stop frame
// immediately. A stop racing the timer firing yields a repeated stop frame,
// which the receiver treats as idempotent.
func (h *TimedCommandHandler) Stop(class string, stop Message) error {
	h.mu.Lock()
	if p, ok := h.pending[class]; ok {
		p.timer.Stop()
		delete(h.pending, class)
	}
	h.mu.Unlock()

	log.WithField("class", class).Debug("stopping actuator")
	if err := h.transport.Send(stop); err != nil {
		return errors.Wrapf(err, "unable to send %s stop", class)
	}
	return nil
}

// StopAll cancels every pending timer and sends each class's stop frame,
// for shutdown.
func (h *TimedCommandHandler) StopAll() error {
	h.mu.Lock()
	stops := make(map[string]Message, len(h.pending))
	for class, p := range h.pending {
		p.timer.Stop()
		stops[class] = p.stop
		delete(h.pending, class)
	}
	h.mu.Unlock()

	var firstErr error
	for class, stop := range stops {
		if err := h.transport.Send(stop); err != nil {
			log.WithField("err", err).Errorf("%s: unable to send stop", class)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Pending reports whether the class has an auto-stop timer armed.
func (h *TimedCommandHandler) Pending(class string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.pending[class]
	return ok
}

func (h *TimedCommandHandler) autoStop(class string, me *clock.Timer, stop Message) {
	h.mu.Lock()
	if p, ok := h.pending[class]; ok && p.timer == me {
		delete(h.pending, class)
	}
	h.mu.Unlock()

	log.WithField("class", class).Debug("auto-stop timer fired")
	if err := h.transport.Send(stop); err != nil {
		log.WithField("err", err).Errorf("%s: unable to send auto-stop", class)
	}
}
