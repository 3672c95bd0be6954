package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/backdrop/internal/api"
	"github.com/bryanchriswhite/backdrop/internal/background"
	"github.com/bryanchriswhite/backdrop/internal/capture"
	"github.com/bryanchriswhite/backdrop/internal/compositor"
	"github.com/bryanchriswhite/backdrop/internal/config"
	"github.com/bryanchriswhite/backdrop/internal/logger"
	"github.com/bryanchriswhite/backdrop/internal/output"
	"github.com/bryanchriswhite/backdrop/internal/segment"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	wallpaperTimeout = 30 * time.Second
	shutdownTimeout  = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Backdrop server",
	Long: `Start capture, segmentation and compositing, and serve the result.

The composited stream is available at /stream (MJPEG) and /snapshot.jpg;
the REST API under /api controls the background mode and the camera.`,
	Example: `  # Start server on default port (8080)
  backdrop serve

  # Start server on custom port
  backdrop serve --port 9090

  # Capture a screen region and key out a green screen
  backdrop serve --capture x11 --segmenter chroma

  # Start with debug logging
  backdrop serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("capture", "", "capture backend (testpattern, x11, webcam)")
	serveCmd.Flags().String("segmenter", "", "segmenter backend (none, chroma, http, mog2)")
	serveCmd.Flags().Int("fps", 0, "compositor frame rate")
	serveCmd.Flags().Bool("pretty", false, "force human-readable console logs")
	serveCmd.Flags().Bool("preview", false, "open a local X11 preview window")

	viper.BindPFlag("capture.backend", serveCmd.Flags().Lookup("capture"))
	viper.BindPFlag("segmenter.backend", serveCmd.Flags().Lookup("segmenter"))
	viper.BindPFlag("compositor.fps", serveCmd.Flags().Lookup("fps"))
	viper.BindPFlag("pretty", serveCmd.Flags().Lookup("pretty"))
	viper.BindPFlag("output.preview_window", serveCmd.Flags().Lookup("preview"))
}

// applyOverrides copies explicitly set flags onto cfg
func applyOverrides(configMgr *config.Manager) (*config.Config, error) {
	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if logLevel := viper.GetString("log_level"); logLevel != "" {
			configMgr.SetLogLevel(logLevel)
		}
	}

	cfg := configMgr.Get()
	if viper.IsSet("capture.backend") {
		if v := viper.GetString("capture.backend"); v != "" {
			cfg.Capture.Backend = v
		}
	}
	if viper.IsSet("segmenter.backend") {
		if v := viper.GetString("segmenter.backend"); v != "" {
			cfg.Segmenter.Backend = v
		}
	}
	if viper.IsSet("compositor.fps") {
		if v := viper.GetInt("compositor.fps"); v > 0 {
			cfg.Compositor.FPS = v
		}
	}
	if viper.IsSet("output.preview_window") {
		cfg.Output.PreviewWindow = viper.GetBool("output.preview_window")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	cfg, err := applyOverrides(configMgr)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.LogLevel, viper.GetBool("pretty") || logger.IsTerminal())
	log := logger.WithComponent("serve")
	log.Info().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	// Background catalog and selection
	catalog, err := background.NewCatalog(cfg.Wallpapers)
	if err != nil {
		return fmt.Errorf("failed to build wallpaper catalog: %w", err)
	}
	selector := background.NewSelector(catalog, background.NewLoader(wallpaperTimeout))
	defer selector.Close()

	// Segmentation
	seg, err := newSegmenter(cfg.Segmenter)
	if err != nil {
		log.Warn().Err(err).
			Str("backend", cfg.Segmenter.Backend).
			Msg("Segmenter unavailable, continuing without background effects")
		seg = nil
	}
	defer func() {
		if err := closeSegmenter(seg); err != nil {
			log.Warn().Err(err).Msg("Failed to release segmenter")
		}
	}()
	oracle := segment.NewOracle(seg, cfg.Compositor.MaxInFlight)

	// Capture
	open, err := newOpener(cfg.Capture)
	if err != nil {
		return err
	}
	session := capture.NewSession(open, capture.NewFeed())
	defer session.Close()
	if cfg.Capture.Active {
		if err := session.SetActive(true); err != nil {
			log.Warn().Err(err).Msg("Camera unavailable, showing placeholder")
		}
	}

	// Output surface and its MJPEG consumer
	stream := output.NewMJPEGOutput(output.Config{
		Quality: cfg.Output.JPEGQuality,
		FPS:     cfg.Compositor.FPS,
	})
	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start MJPEG output: %w", err)
	}
	defer stream.Stop()

	surface := compositor.NewSurface()
	surface.AddSink(stream)

	if cfg.Output.PreviewWindow {
		preview := output.NewX11Window(cfg.Output.PreviewWidth, cfg.Output.PreviewHeight)
		if err := preview.Start(); err != nil {
			log.Warn().Err(err).Msg("Preview window unavailable")
		} else {
			defer preview.Stop()
			surface.AddSink(preview)
		}
	}

	comp := compositor.New(compositor.Options{
		Feed:              session.Feed(),
		Selector:          selector,
		Oracle:            oracle,
		Surface:           surface,
		FPS:               cfg.Compositor.FPS,
		PlaceholderWidth:  cfg.Compositor.PlaceholderWidth,
		PlaceholderHeight: cfg.Compositor.PlaceholderHeight,
	})
	defer comp.Close()

	// Restore the persisted background
	if mode, err := background.ParseMode(cfg.Background.Mode, cfg.Background.WallpaperID); err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid startup background")
	} else if err := comp.SetMode(mode); err != nil {
		log.Warn().Err(err).Str("mode", mode.String()).Msg("Failed to restore background")
	}

	server := api.NewServer(api.Deps{
		Compositor: comp,
		Selector:   selector,
		Session:    session,
		Stream:     stream,
		Config:     configMgr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return comp.Run(ctx)
	})
	g.Go(func() error {
		return server.Start(cfg.ServerPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info().
		Int("port", cfg.ServerPort).
		Str("capture", cfg.Capture.Backend).
		Str("segmenter", cfg.Segmenter.Backend).
		Bool("effects", comp.EffectsAvailable()).
		Str("session_id", comp.ID()).
		Msgf("Backdrop is running: http://localhost:%d", cfg.ServerPort)

	return g.Wait()
}
