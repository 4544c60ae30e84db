// Command sttsidecar is the speech-to-text sidecar process: it reads PCM
// frames and control requests from stdin as line-delimited JSON, and emits
// transcription and resource-monitor events to stdout.
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/team-hashing/whispersidecar/pkg/ipc"
	"github.com/team-hashing/whispersidecar/pkg/monitor"
	"github.com/team-hashing/whispersidecar/pkg/pipeline"
	"github.com/team-hashing/whispersidecar/pkg/sidecar"
	"github.com/team-hashing/whispersidecar/pkg/sttengine"
	"github.com/team-hashing/whispersidecar/pkg/vad"
)

func main() {
	if err := godotenv.Load(); err != nil {
		os.Stderr.WriteString("note: no .env file found, using system environment variables\n")
	}

	logger := sidecar.NewStderrLogger()
	cfg := sidecar.ConfigFromEnv()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("could not resolve home directory", "error", err)
	}

	profile := detectSystemProfile(logger)
	initialModel := monitor.SelectStartupModel(profile)
	logger.Info("selected startup model", "model", initialModel, "gpu", profile.GPUPresent, "ram_gb", profile.RAMGB)

	discoveryCfg := sttengine.DiscoveryConfig{
		AppName:     cfg.AppName,
		HomeDir:     homeDir,
		InstallDirs: bundledInstallDirs(cfg.AppName),
		RemoteOrg:   "Systran",
		Offline:     cfg.OfflineMode,
	}
	if cfg.ModelOverride != "" {
		discoveryCfg.InstallDirs = append([]string{cfg.ModelOverride}, discoveryCfg.InstallDirs...)
	}

	backend := sttengine.NewStubBackend()
	facade := sttengine.NewFacade(backend, discoveryCfg, logger)
	if !cfg.OfflineMode {
		facade.WithRemoteResolver(sttengine.NewRemoteResolver())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	actualModel, err := facade.LoadModel(ctx, initialModel)
	if err != nil {
		logger.Error("fatal: initial model load failed", "error", err)
		os.Exit(1)
	}

	ch := ipc.NewChannel(os.Stdin, os.Stdout, cfg.IdleTimeout, logger)

	var writer sidecar.Writer = ch
	var debugServer *sidecar.DebugServer
	if cfg.DebugWSAddr != "" {
		debugServer = sidecar.NewDebugServer(cfg.DebugWSAddr, logger)
		if err := debugServer.Start(); err != nil {
			logger.Warn("debug websocket mirror failed to start", "addr", cfg.DebugWSAddr, "error", err)
			debugServer = nil
		} else {
			writer = sidecar.NewMirroringWriter(ch, debugServer)
			logger.Info("debug websocket mirror listening", "addr", cfg.DebugWSAddr)
			defer debugServer.Stop(context.Background())
		}
	}

	detector := vad.NewDetector()
	pl := pipeline.New(detector, facade)

	sampler, err := monitor.NewProcessSampler()
	if err != nil {
		logger.Error("fatal: could not start resource sampler", "error", err)
		os.Exit(1)
	}

	mon := monitor.New(sampler, logger, actualModel, cfg.MonitorInterval, monitor.Callbacks{
		OnDowngrade: func(ctx context.Context, old, proposed sttengine.ModelSize) (sttengine.ModelSize, error) {
			actual, err := facade.LoadModel(ctx, proposed)
			if err != nil {
				return "", err
			}
			writeEvent(writer, logger, "model_change", map[string]interface{}{
				"old_model": old,
				"new_model": actual,
			})
			return actual, nil
		},
		OnUpgradeProposal: func(current, proposed sttengine.ModelSize) {
			writeEvent(writer, logger, "upgrade_proposal", map[string]interface{}{
				"current_model":  current,
				"proposed_model": proposed,
			})
		},
		OnPauseRecording: func() {
			writeEvent(writer, logger, "recording_paused", nil)
		},
	})

	dispatcher := sidecar.NewDispatcher(writer, pl, facade, mon, logger)

	go mon.Run(ctx)
	defer mon.Stop()

	if err := writer.Write(ipc.NewEvent("whisper_model_ready", map[string]interface{}{
		"model_size": actualModel,
		"model_path": facade.ModelPath(),
	})); err != nil {
		logger.Error("fatal: failed to write startup event", "error", err)
		os.Exit(1)
	}
	if err := writer.Write(ipc.NewReady("sttsidecar ready")); err != nil {
		logger.Error("fatal: failed to write ready message", "error", err)
		os.Exit(1)
	}

	// The initial load counts as a model change too, so the host always
	// learns the effective model the same way it learns later switches.
	writeEvent(writer, logger, "model_change", map[string]interface{}{"new_model": actualModel})

	runInboundLoop(ctx, ch, dispatcher, logger)
}

func runInboundLoop(ctx context.Context, ch *ipc.Channel, dispatcher *sidecar.Dispatcher, logger sidecar.Logger) {
	for {
		in, err := ch.ReadMessageCtx(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				logger.Info("stdin closed, shutting down")
				return
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, ipc.ErrIdleTimeout):
				continue
			case errors.Is(err, ipc.ErrOversizeMessage):
				dispatcher.ReportProtocolError(sidecar.CodeInvalidMessage, err)
				continue
			default:
				dispatcher.ReportProtocolError(sidecar.CodeInvalidJSON, err)
				continue
			}
		}

		dispatcher.Dispatch(ctx, in)

		if dispatcher.ShuttingDown() {
			logger.Info("shutdown requested, exiting inbound loop")
			return
		}
	}
}

func writeEvent(w sidecar.Writer, logger sidecar.Logger, eventType string, data interface{}) {
	if err := w.Write(ipc.NewEvent(eventType, data)); err != nil {
		logger.Error("failed to write event", "eventType", eventType, "error", err)
	}
}

// detectSystemProfile builds the one-shot SystemProfile startup model
// selection needs. RAM comes from gopsutil; there is no portable GPU/VRAM
// probe, so GPU presence is taken from an explicit override env var and
// defaults to false.
func detectSystemProfile(logger sidecar.Logger) monitor.SystemProfile {
	profile := monitor.SystemProfile{}

	if vm, err := mem.VirtualMemory(); err == nil {
		profile.RAMGB = float64(vm.Total) / (1024 * 1024 * 1024)
	} else {
		logger.Warn("could not read system memory", "error", err)
	}

	if v := os.Getenv("WHISPERSIDECAR_GPU_PRESENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			profile.GPUPresent = b
		}
	}
	if v := os.Getenv("WHISPERSIDECAR_VRAM_GB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			profile.VRAMGB = f
		}
	}

	return profile
}

func bundledInstallDirs(appName string) []string {
	dirs := []string{filepath.Join("/usr/share", appName, "models")}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "models"))
	}
	return dirs
}
