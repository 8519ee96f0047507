package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmironenko/dnp3/internal/config"
	"github.com/bmironenko/dnp3/internal/dnp3/command"
	"github.com/bmironenko/dnp3/internal/dnp3/database"
	"github.com/bmironenko/dnp3/internal/dnp3/executor"
	"github.com/bmironenko/dnp3/internal/dnp3/link"
	"github.com/bmironenko/dnp3/internal/dnp3/outstation"
	"github.com/bmironenko/dnp3/internal/historian"
	"github.com/bmironenko/dnp3/internal/logger"
	"github.com/bmironenko/dnp3/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the outstation and its demo TCP listener",
	Long: `Start the outstation engine: bring up the in-memory point database,
the application-layer strand, and a demo TCP listener a master can dial into.

Runs in the foreground until interrupted (SIGINT/SIGTERM), then drains the
link listener and the strand before exiting.`,
	RunE: runRun,
}

// contextBridge breaks the construction cycle between link.Server (which
// needs a Receiver up front) and outstation.Context (which needs a
// LowerLayer up front): the bridge is handed to the link server first and
// only forwards once the outstation context is assigned to it, which
// happens before ListenAndServe is ever called.
type contextBridge struct {
	ctx *outstation.Context
}

func (b *contextBridge) OnLowerLayerUp()           { b.ctx.OnLowerLayerUp() }
func (b *contextBridge) OnLowerLayerDown()         { b.ctx.OnLowerLayerDown() }
func (b *contextBridge) OnReceive(data []byte)     { b.ctx.OnReceive(data) }
func (b *contextBridge) OnSendResult(success bool) { b.ctx.OnSendResult(success) }

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	logger.Info("starting dnp3-outstation", "link_addr", cfg.Link.ListenAddress)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	db := database.NewMemory(cfg.Events.ToEventBufferConfig(), command.NopHandler{})
	seedDemoPoints(db)

	var historianSink *historian.Sink
	if cfg.Historian.Enabled {
		store, err := historian.Open(cfg.Historian.Path)
		if err != nil {
			return fmt.Errorf("failed to open historian store: %w", err)
		}
		historianSink = historian.NewSink(store)
		db.Events().SetOnClear(historianSink.OnClear)
		logger.Info("historian enabled", "path", cfg.Historian.Path)
		defer historianSink.Close()
	}

	bridge := &contextBridge{}
	server := link.NewServer(cfg.Link.ListenAddress, bridge)

	exec := executor.New()
	ctx := outstation.New(exec, cfg.Outstation.ToOutstationConfig(), db, outstation.NopApplication{}, server)
	bridge.ctx = ctx
	ctx.SetMetrics(metrics.New())

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Address, db)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	controlServer := newControlServer(cfg.Control.Address, db, ctx)
	go func() {
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("control server stopped", "error", err)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("link listener stopped", "error", err)
		}
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Close(); err != nil {
		logger.Warn("error closing link listener", "error", err)
	}
	shutdownControlServer(shutdownCtx, controlServer)
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down metrics server", "error", err)
		}
	}
	exec.InitiateShutdown()
	waitWithTimeout(exec, cfg.ShutdownTimeout)

	logger.Info("dnp3-outstation stopped")
	return nil
}

func waitWithTimeout(exec *executor.Executor, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		exec.WaitForShutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("strand did not drain within shutdown timeout")
	}
}
