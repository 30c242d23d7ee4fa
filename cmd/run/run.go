package run

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/xfrag/webrtc/internal/adm"
	"github.com/xfrag/webrtc/internal/buildinfo"
	"github.com/xfrag/webrtc/internal/conf"
	"github.com/xfrag/webrtc/internal/errors"
	"github.com/xfrag/webrtc/internal/logging"
	"github.com/xfrag/webrtc/internal/observability"
	"github.com/xfrag/webrtc/internal/session"
)

// sentryFlushTimeout bounds how long pending error reports may delay exit.
const sentryFlushTimeout = 2 * time.Second

// Command creates the run command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the device adapter",
		Long: "Open the configured backend, wrap it in the device module and loop recorded " +
			"audio back to playout until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, build, duration)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long, 0 runs until interrupted")
	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the run command and binds them
// to their configuration keys.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("backend", "", "Device backend: file, malgo or portaudio")
	cmd.Flags().String("input", "", "Capture source file for the file backend")
	cmd.Flags().String("output", "", "Playout WAV file for the file backend")
	cmd.Flags().Bool("loop", false, "Restart the capture file at its end")
	cmd.Flags().Bool("telemetry", false, "Enable the Prometheus metrics endpoint")
	cmd.Flags().String("listen", "", "Listen address of the metrics endpoint")

	for key, flag := range map[string]string{
		"device.backend":     "backend",
		"device.file.input":  "input",
		"device.file.output": "output",
		"device.file.loop":   "loop",
		"telemetry.enabled":  "telemetry",
		"telemetry.listen":   "listen",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

// Run builds the session and serves metrics until ctx is done or the
// session fails. A positive duration bounds the run.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, duration time.Duration) error {
	logger, closeLog, err := newLogger(settings)
	if err != nil {
		return err
	}
	defer closeLog()

	if settings.Telemetry.Sentry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.Sentry.DSN, build.Version(), settings.Debug); err != nil {
			return err
		}
		sentry.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTag("instance_id", build.InstanceID())
		})
		defer sentry.Flush(sentryFlushTimeout)
	}

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)

	if settings.Telemetry.Enabled {
		metrics, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		adm.InitMetrics(metrics.ADM)
		endpoint, err := observability.NewEndpoint(settings, metrics)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	// the session's control path stays on this goroutine from Start to Stop
	g.Go(func() error {
		backend, err := session.NewBackend(settings, logger)
		if err != nil {
			return err
		}
		s, err := session.New(settings, backend, logger)
		if err != nil {
			return err
		}
		if err := s.Run(gctx); err != nil {
			return err
		}
		status := s.Status()
		logger.Info("run finished",
			"version", build.Version(),
			"recording_warnings", status.RecordingWarnings,
			"recording_errors", status.RecordingErrors,
			"playout_warnings", status.PlayoutWarnings,
			"playout_errors", status.PlayoutErrors)
		return nil
	})

	return g.Wait()
}

// newLogger returns the adm service logger, teed into a rotated file when
// file logging is enabled.
func newLogger(settings *conf.Settings) (*slog.Logger, func(), error) {
	logger := logging.ForService("adm")
	if logger == nil {
		logger = slog.Default()
	}
	if !settings.Main.Log.Enabled {
		return logger, func() {}, nil
	}

	fileLogger, closeFile, err := logging.NewFileLogger(settings.Main.Log.Path, "adm", logging.Level(), logging.RotationConfig{
		MaxSizeMB:  settings.Main.Log.MaxSize,
		MaxBackups: settings.Main.Log.MaxBackups,
		MaxAgeDays: settings.Main.Log.MaxAge,
		Compress:   settings.Main.Log.Compress,
	})
	if err != nil {
		return nil, nil, err
	}
	return logging.Tee(logger, fileLogger), func() {
		if err := closeFile(); err != nil {
			logger.Warn("closing log file", "error", err)
		}
	}, nil
}
