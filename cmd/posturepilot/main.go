package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ayusman/posturepilot/internal/app"
	"github.com/ayusman/posturepilot/internal/capture"
	"github.com/ayusman/posturepilot/internal/config"
	"github.com/ayusman/posturepilot/internal/pose"
	"github.com/ayusman/posturepilot/internal/posture"
	"github.com/ayusman/posturepilot/internal/server"
	"github.com/ayusman/posturepilot/internal/store"
	"github.com/ayusman/posturepilot/internal/tray"
)

type options struct {
	configPath string
	addr       string
	staticDir  string
	camera     int
	headless   bool
	noDesktop  bool
	replay     string
	speed      float64
	record     string
	writeConf  bool
}

func parseFlags() (options, map[string]bool) {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to config.yaml (default ~/.posturepilot/config.yaml)")
	flag.StringVar(&o.addr, "addr", "", "Dashboard listen address")
	flag.StringVar(&o.staticDir, "static", "", "Directory with dashboard static files")
	flag.IntVar(&o.camera, "camera", 0, "Camera device index")
	flag.BoolVar(&o.headless, "headless", false, "Run without the system tray; alerts go to the log")
	flag.BoolVar(&o.noDesktop, "no-desktop", false, "Disable desktop notifications")
	flag.StringVar(&o.replay, "replay", "", "Analyze a JSON-lines landmark recording and exit")
	flag.Float64Var(&o.speed, "speed", 0, "Replay speed; 0 replays as fast as possible, 1 is real time")
	flag.StringVar(&o.record, "record", "", "Append captured landmarks to this JSON-lines file")
	flag.BoolVar(&o.writeConf, "write-config", false, "Write the effective configuration and exit")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return o, set
}

func main() {
	opts, set := parseFlags()

	cfgPath := opts.configPath
	if cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			log.Fatalf("Failed to locate config: %v", err)
		}
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if set["addr"] {
		cfg.Server.Addr = opts.addr
	}
	if set["static"] {
		cfg.Server.StaticDir = opts.staticDir
	}
	if set["camera"] {
		cfg.Camera.Device = opts.camera
	}
	if opts.noDesktop || opts.headless {
		cfg.Notify.Desktop = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if opts.writeConf {
		if err := config.Save(cfgPath, cfg); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote %s\n", cfgPath)
		return
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()
	st.SetRetention(cfg.Store.Retention)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.replay != "" {
		if err := runReplay(ctx, cfg, st, opts.replay, opts.speed); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		return
	}

	if err := runLive(ctx, cfg, st, opts); err != nil {
		log.Fatalf("PosturePilot failed: %v", err)
	}
}

func runLive(ctx context.Context, cfg *config.Config, st *store.Store, opts options) error {
	fmt.Println("PosturePilot - Posture Monitor")

	detector, err := pose.NewMediaPipeDetector(cfg.PoseConfig())
	if err != nil {
		return fmt.Errorf("pose detector: %w", err)
	}
	camSource := pose.NewCameraSource(capture.NewCamera(cfg.CaptureConfig()), detector)

	var src pose.Source = camSource
	if opts.record != "" {
		f, err := os.OpenFile(opts.record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open recording: %w", err)
		}
		defer f.Close()
		rec := pose.NewRecorder(f)
		src = tap(camSource, func(fr pose.Frame) {
			if err := rec.Write(fr); err != nil {
				log.Printf("Failed to record frame: %v", err)
			}
		})
		log.Printf("Recording landmarks to %s", opts.record)
	}

	var tr *tray.Tray
	if !opts.headless {
		tr = tray.New()
	}

	sinks, closeSinks := buildSinks(ctx, cfg, st, tr)
	defer closeSinks()

	ctrl := app.New(cfg.AppConfig(), src, sinks)
	defer ctrl.Close()

	if b, err := st.GetBaseline(ctx); err == nil && b != nil {
		log.Printf("Last baseline: scale %.3f from %s", b.ScaleFactor, b.CreatedAt.Format(time.RFC3339))
	}

	srv := server.New(server.Config{
		StaticDir:  cfg.Server.StaticDir,
		Store:      st,
		Controller: ctrl,
		Preview:    camSource.Preview,
	})
	go func() {
		if err := srv.Serve(ctx, cfg.Server.Addr); err != nil {
			log.Printf("Dashboard server failed: %v", err)
		}
	}()

	start := func() {
		if err := ctrl.Start(ctx); err != nil {
			var initErr *app.InitializationError
			if errors.As(err, &initErr) {
				log.Printf("Camera or pose model unavailable after %d attempts; use Recalibrate to retry", initErr.Attempts)
				return
			}
			log.Printf("Failed to start monitoring: %v", err)
		}
	}
	go start()

	if tr == nil {
		<-ctx.Done()
		log.Println("Shutting down")
		return nil
	}

	unsubscribe := ctrl.Subscribe(func(e app.Event) {
		if e.Type == app.EventStateChanged {
			tr.SetState(e.State)
		}
	})
	defer unsubscribe()

	tr.OnPause(func() { logErr("pause", ctrl.Pause()) })
	tr.OnResume(func() { logErr("resume", ctrl.Resume()) })
	tr.OnRecalibrate(func() {
		if logErr("recalibrate", ctrl.Recalibrate()) {
			go start()
		}
	})
	tr.OnDashboard(func() { logErr("open dashboard", openBrowser("http://"+cfg.Server.Addr)) })
	tr.OnQuit(func() { tr.Quit() })

	go func() {
		<-ctx.Done()
		tr.Quit()
	}()

	// systray must own the main goroutine on macOS.
	tr.Run()
	log.Println("Shutting down")
	return nil
}

// logErr logs a failed tray command and reports whether it succeeded.
func logErr(action string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, posture.ErrInvalidTransition) {
		log.Printf("Cannot %s now: %v", action, err)
		return false
	}
	log.Printf("Failed to %s: %v", action, err)
	return false
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
