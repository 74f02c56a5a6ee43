package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/telemetry"
	"github.com/ayusman/mudra/internal/tray"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		autoStart   bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&autoStart, "start", false, "Start the camera as soon as the model is loaded")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(log)

	if err := run(cfg, autoStart, log); err != nil {
		log.Error("mudra exited with error", zap.Error(err))
		logging.Sync(log)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg config.Config, autoStart bool, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, metrics, err := telemetry.Setup(cfg.ServiceName, log)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Warn("metrics shutdown failed", zap.Error(err))
		}
	}()

	a, err := app.New(app.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}
	defer a.Close()

	webDir := cfg.HTTP.StaticDir
	if webDir == "" {
		webDir = findWebDir(app.ExpandHome(cfg.DataDir))
	}
	if webDir != "" {
		log.Info("serving static files", zap.String("dir", webDir))
	}

	srv := a.Server(webDir, metrics)
	defer srv.Close()
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	go func() {
		if err := a.LoadModel(ctx); err != nil {
			log.Error("model unavailable", zap.Error(err))
			return
		}
		if autoStart {
			if err := a.Start(); err != nil {
				log.Error("failed to start capture", zap.Error(err))
			}
		}
	}()

	if cfg.Tray {
		t := newTray(ctx, a, cfg, log)
		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		// The tray must own the main goroutine on macOS.
		t.Run()
		stop()
	} else {
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}
	return nil
}

// newTray connects the tray menu to the session.
func newTray(ctx context.Context, a *app.App, cfg config.Config, log *zap.Logger) *tray.Tray {
	t := tray.New()
	s := a.Session()

	t.OnToggle(func(running bool) {
		if !running {
			s.Stop()
			return
		}
		if err := a.Start(); err != nil {
			log.Warn("failed to start capture", zap.Error(err))
		}
	})
	t.OnReset(s.Reset)
	t.OnSpeak(func() {
		if err := a.Speak(ctx); err != nil {
			log.Warn("speech failed", zap.Error(err))
		}
	})
	t.OnSettings(func() {
		url := fmt.Sprintf("http://%s/", cfg.Addr())
		if err := openBrowser(url); err != nil {
			log.Warn("failed to open browser", zap.String("url", url), zap.Error(err))
		}
	})
	t.OnQuit(func() {
		log.Info("quit requested from tray")
	})

	s.Subscribe(func(e session.Event) {
		snap := s.Snapshot()
		t.SetRunning(snap.Running)
		t.SetStatus(snap.StatusText)
		t.SetSentence(snap.FinalTranslation)
	})
	return t
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <data dir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	dataWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(dataWebDir); err == nil && info.IsDir() {
		return dataWebDir
	}

	return ""
}
