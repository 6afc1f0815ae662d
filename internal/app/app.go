// Package app wires the capture daemon together: key sources feed the
// tracker, the tracker records into the bounded buffer, the flush controller
// persists batches to sqlite, and a unix socket answers control commands.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"keyflow/internal/buffer"
	"keyflow/internal/capture"
	"keyflow/internal/capture/evdev"
	"keyflow/internal/capture/x11"
	"keyflow/internal/config"
	"keyflow/internal/event"
	"keyflow/internal/ipc"
	"keyflow/internal/storage"

	sqlitestore "keyflow/internal/storage/sqlite"
)

type App struct {
	cfg *config.Config
	log *zap.Logger

	store   storage.Storage
	buf     *buffer.Buffer
	ctrl    *buffer.Controller
	tracker *capture.Tracker
	source  capture.Source
	ctxProv capture.ContextProvider

	socketPath string
	listener   *net.UnixListener

	transitions chan event.Transition
	startedAt   time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:         cfg,
		log:         log,
		socketPath:  ipc.SocketPath,
		transitions: make(chan event.Transition, 256),
		ctx:         ctx,
		cancel:      cancel,
	}

	a.store = sqlitestore.NewStore(cfg.DatabasePath, log)
	if err := a.store.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Foreground context is best effort: without X the daemon still captures,
	// just with empty app/window fields.
	prov, err := x11.NewProvider(log)
	if err != nil {
		log.Warn("X11 unavailable, keystrokes will carry no app context", zap.Error(err))
	} else {
		a.ctxProv = prov
	}

	a.buf = buffer.New(a.store, cfg.Capture.BufferCapacity, log)
	a.tracker = capture.NewTracker(a.buf, a.ctxProv, cfg.Analysis.MicroPause(), log)
	a.ctrl = buffer.NewController(a.buf, a.tracker,
		cfg.Capture.FlushInterval(), cfg.Capture.ShutdownFlushTimeout(), log)
	a.source = evdev.NewSource(log)

	return a, nil
}

func (a *App) Run() error {
	defer a.cleanup()

	a.startedAt = time.Now()
	a.log.Info("Starting keyflow daemon",
		zap.String("db", a.cfg.DatabasePath),
		zap.String("stream_id", a.tracker.StreamID()),
		zap.Int("buffer_capacity", a.cfg.Capture.BufferCapacity),
		zap.Duration("flush_interval", a.cfg.Capture.FlushInterval()))

	if err := a.setupSocket(); err != nil {
		return err
	}

	a.handleSignals()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.ctrl.Run(a.ctx)
	}()

	a.wg.Add(1)
	go a.dispatchTransitions()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.source.Start(a.ctx, a.transitions)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("Key source stopped", zap.Error(err))
			a.cancel()
		}
	}()

	a.wg.Add(1)
	go a.listenForCommands()

	a.log.Info("Daemon running, send commands via keyflow-cli or the socket")
	<-a.ctx.Done()

	a.log.Info("Shutdown signal received, stopping components")
	if a.listener != nil {
		if err := a.listener.Close(); err != nil {
			a.log.Warn("Error closing socket listener", zap.Error(err))
		}
	}
	if err := a.source.Stop(); err != nil {
		a.log.Warn("Error stopping key source", zap.Error(err))
	}

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()
	select {
	case <-waitChan:
	case <-time.After(a.cfg.Capture.ShutdownFlushTimeout() + 5*time.Second):
		a.log.Warn("Timeout waiting for goroutines to stop")
	}
	return nil
}

// dispatchTransitions feeds raw key transitions to the tracker.
func (a *App) dispatchTransitions() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case tr := <-a.transitions:
			a.tracker.Handle(tr)
		}
	}
}

// setupSocket refuses to start when another live daemon holds the socket, and
// takes over a stale socket file left by a crashed one.
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance is running", a.socketPath)
		}
		a.log.Info("Removing stale socket file", zap.String("path", a.socketPath))
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	a.log.Info("Listening for commands", zap.String("socket", a.socketPath))
	return nil
}

func (a *App) listenForCommands() {
	defer a.wg.Done()

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}
			a.log.Warn("Failed to accept connection", zap.Error(err))
			var ne net.Error
			if errors.As(err, &ne) && !ne.Timeout() {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		a.wg.Add(1)
		go a.handleConnection(conn)
	}
}

func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()
	defer a.wg.Done()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			a.log.Warn("Failed to decode command", zap.Error(err))
		}
		_ = encoder.Encode(ipc.Response{Success: false, Message: "failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	a.log.Debug("Received command", zap.String("name", cmd.Name))
	if err := encoder.Encode(a.processCommand(cmd)); err != nil {
		a.log.Warn("Failed to send response", zap.Error(err))
	}
}

func (a *App) processCommand(cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}

	case ipc.CmdStatus:
		status := ipc.StatusData{
			StreamID:      a.tracker.StreamID(),
			StartedAt:     a.startedAt,
			UptimeSeconds: time.Since(a.startedAt).Seconds(),
			Buffer:        a.buf.Stats(),
		}
		if a.ctxProv != nil {
			if focus, err := a.ctxProv.Current(); err == nil {
				status.AppName = focus.AppName
				status.WindowTitle = focus.Title
			}
		}
		return ipc.Response{Success: true, Data: status}

	case ipc.CmdFlush:
		a.tracker.SealPending()
		ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Capture.ShutdownFlushTimeout())
		defer cancel()
		if err := a.buf.Flush(ctx); err != nil {
			return ipc.Response{Success: false, Message: fmt.Sprintf("flush failed: %v", err)}
		}
		stats := a.buf.Stats()
		return ipc.Response{
			Success: true,
			Message: fmt.Sprintf("flushed, %d events persisted total", stats.Flushed),
			Data:    stats,
		}

	default:
		return ipc.Response{Success: false, Message: fmt.Sprintf("unknown command: %s", cmd.Name)}
	}
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		a.log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		a.cancel()
	}()
}

func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Error closing storage", zap.Error(err))
		}
	}
	if _, err := os.Stat(a.socketPath); err == nil {
		if err := os.Remove(a.socketPath); err != nil {
			a.log.Warn("Failed to remove socket file", zap.String("path", a.socketPath), zap.Error(err))
		}
	}
	a.log.Info("Cleanup finished")
}
