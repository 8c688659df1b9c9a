// Command lmsctl is an interactive shell for driving up to four SICK LMS 2xx
// rangefinders over serial links.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/banshee-data/lmsctl/internal/config"
	"github.com/banshee-data/lmsctl/internal/db"
	"github.com/banshee-data/lmsctl/internal/dispatch"
	"github.com/banshee-data/lmsctl/internal/driver"
	"github.com/banshee-data/lmsctl/internal/driver/linkdriver"
	"github.com/banshee-data/lmsctl/internal/driver/simdriver"
	"github.com/banshee-data/lmsctl/internal/registry"
	"github.com/banshee-data/lmsctl/internal/version"
)

var (
	configPath       = flag.String("config", "", "Path to JSON configuration file")
	devMode          = flag.Bool("dev", false, "Use simulated devices instead of serial ports")
	dbPath           = flag.String("db", "", "Archive every grab to this SQLite database")
	listen           = flag.String("listen", "", "Admin debug listen address (e.g. localhost:8090)")
	portTimeout      = flag.Duration("port-timeout", 0, "Reply timeout for one device request")
	tolerateTimeouts = flag.Bool("tolerate-timeouts", false, "Keep a device attached when a grab times out")
	jsonOut          = flag.Bool("json", false, "Print results as JSON")
	scriptPath       = flag.String("script", "", "Read commands from this file instead of stdin")
	showVersion      = flag.Bool("version", false, "Print version and exit")
)

// settings is the merged view of the config file and flags.
type settings struct {
	driver           string
	defaultBaud      driver.Baud
	tolerateTimeouts bool
	archivePath      string
	listen           string
	cfg              *config.Config
}

func loadSettings() (settings, error) {
	cfg := config.Empty()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return settings{}, err
		}
		cfg = loaded
	}
	if *portTimeout > 0 {
		d := portTimeout.String()
		cfg.ReadTimeout = &d
	}

	s := settings{
		driver:           cfg.GetDriver(),
		defaultBaud:      cfg.GetDefaultBaud(),
		tolerateTimeouts: cfg.GetTolerateTimeouts() || *tolerateTimeouts,
		archivePath:      cfg.GetArchivePath(),
		listen:           cfg.GetAdminListen(),
		cfg:              cfg,
	}
	if *devMode {
		s.driver = config.DriverSim
	}
	if *dbPath != "" {
		s.archivePath = *dbPath
	}
	if *listen != "" {
		s.listen = *listen
	}
	if s.defaultBaud == driver.BaudUnknown {
		s.defaultBaud = driver.Baud9600
	}
	return s, nil
}

func (s settings) factory() driver.Factory {
	if s.driver == config.DriverSim {
		return simdriver.NewBench().Factory()
	}
	return linkdriver.Factory(linkdriver.Options{
		Port:         s.cfg.PortOptions(s.defaultBaud),
		ReplyTimeout: s.cfg.GetReadTimeout(),
	})
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("lmsctl %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	s, err := loadSettings()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	sh := newShell(os.Stdout, os.Stderr)
	sh.defaultBaud = s.defaultBaud
	sh.jsonOut = *jsonOut

	var input io.Reader = os.Stdin
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			log.Fatalf("failed to open script: %v", err)
		}
		defer f.Close()
		input = f
	} else {
		sh.interactive = isatty.IsTerminal(os.Stdin.Fd())
	}

	opts := dispatch.Options{TolerateTimeouts: s.tolerateTimeouts}
	var archive *db.DB
	if s.archivePath != "" {
		archive, err = db.NewDB(s.archivePath)
		if err != nil {
			log.Fatalf("Failed to open scan archive: %v", err)
		}
		defer archive.Close()
		opts.Sink = archive
	}

	reg := registry.New(s.factory(), sh.Warnf)
	disp := dispatch.New(reg, sh, opts)
	sh.disp = disp

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if s.listen != "" {
		mux := http.NewServeMux()
		disp.AttachAdminRoutes(mux)
		if archive != nil {
			archive.AttachAdminRoutes(mux)
		}
		server = &http.Server{Addr: s.listen, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("admin server stopped: %v", err)
			}
		}()
		log.Printf("admin pages on http://%s/debug/", s.listen)
	}

	if sh.interactive {
		fmt.Printf("lmsctl %s (%s driver); type help for commands\n", version.Version, s.driver)
	}

	done := make(chan error, 1)
	go func() { done <- sh.run(input) }()

	select {
	case err := <-done:
		if err != nil {
			log.Printf("input error: %v", err)
		}
	case <-ctx.Done():
		log.Println("interrupted, shutting down devices...")
	}
	stopHost(server, sh)
}

// stopHost stops the admin server, waiting for in-flight commands, and only
// then runs the exit hooks so no session can be created after teardown.
func stopHost(server *http.Server, sh *shell) {
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}
	sh.runExitHooks()
}
