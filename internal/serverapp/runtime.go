package serverapp

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

const (
	stopReasonSignal      = "signal"
	stopReasonServerError = "server_error"
)

var errServerStopped = errors.New("server stopped unexpectedly")

// Start runs the HTTP server in the background. Calling it again returns the
// channel of the running server.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	switch {
	case !a.initialized:
		return nil, errors.New("app is not initialized")
	case a.started:
		return a.serverErrors, nil
	}

	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// WaitForStop blocks until a signal arrives or the server exits. A nil
// serverErrors falls back to the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", errors.New("nothing to wait for: stop and server error channels are nil")
	}

	// Receiving from a nil channel blocks, so a missing source never wins.
	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		}
		return stopReasonSignal, nil
	case serveErr := <-serverErrors:
		if serveErr == nil {
			return stopReasonServerError, errServerStopped
		}
		return stopReasonServerError, fmt.Errorf("server failed: %w", serveErr)
	}
}
