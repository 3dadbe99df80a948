package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"k8s.io/klog/v2"

	"github.com/nb-picture/backend/internal/api"
	"github.com/nb-picture/backend/internal/config"
	"github.com/nb-picture/backend/internal/dom"
	"github.com/nb-picture/backend/internal/journal"
	"github.com/nb-picture/backend/internal/parser"
	"github.com/nb-picture/backend/internal/picture"
	"github.com/nb-picture/backend/internal/session"
	"github.com/nb-picture/backend/internal/storage"
	"github.com/nb-picture/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "NbPicture.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Advanced.LogVerbosity > 0 {
		flag.Set("v", strconv.Itoa(cfg.Advanced.LogVerbosity))
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	embeddedMode := web.HasEmbeddedFiles()

	// Initialize storage
	imageStore, err := storage.NewLocalStore(cfg.Storage.ImagesDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Load widget definitions
	catalog := parser.NewCatalog()
	n, err := catalog.Load(cfg.Storage.DefinitionsDirectory)
	if err != nil {
		fmt.Printf("Warning: failed to load definitions: %v\n", err)
	} else {
		klog.Infof("[Definitions] loaded %d definition(s) from %s", n, cfg.Storage.DefinitionsDirectory)
	}

	// Registry of pictures and maps
	registryOpts := []picture.Option{picture.WithTouch(cfg.Widgets.Touch)}
	if queries := cfg.GetMediaQueries(); queries != nil {
		registryOpts = append(registryOpts, picture.WithMediaQueries(queries))
	}
	registry := picture.NewRegistry(picture.NewIDGenerator(cfg.Widgets.IDScheme), registryOpts...)

	hub := api.NewHub()
	sessionOpts := []session.Option{
		session.WithOpener(imageStore),
		session.WithRemote(hub),
		session.WithReleaseHook(hub.Forget),
	}

	// Interaction journal
	var stats api.StatsSource
	var events *journal.Journal
	if cfg.Advanced.EnableJournal {
		events, err = journal.New()
		if err != nil {
			fmt.Printf("Warning: journal disabled: %v\n", err)
		} else {
			stats = events
			sessionOpts = append(sessionOpts, session.WithRecorder(events))
		}
	}

	sessionMgr := session.NewManager(registry, dom.TimerScheduler{}, session.Options{
		MaxWidgets:     cfg.Widgets.MaxWidgets,
		ResizeDebounce: cfg.Widgets.ResizeDebounce(),
	}, sessionOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Keep the catalog in sync with the definitions directory
	if cfg.Widgets.WatchDefinitions {
		watcher, err := parser.NewWatcher(cfg.Storage.DefinitionsDirectory, catalog, func(def *parser.Definition, removed bool) {
			if n := sessionMgr.ReloadDefinition(def, removed); n > 0 {
				klog.Infof("[Definitions] %q changed, %d widget(s) reloaded", def.Name, n)
			}
		})
		if err != nil {
			fmt.Printf("Warning: definition watcher disabled: %v\n", err)
		} else {
			defer watcher.Close()
			go watcher.Run(ctx)
		}
	}

	// Start background widget cleanup
	go func() {
		ticker := time.NewTicker(cfg.Widgets.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sessionMgr.CleanupIdleWidgets(cfg.Widgets.IdleTimeout())
				if events != nil {
					if err := events.Flush(); err != nil {
						klog.Errorf("[Journal] flush failed: %v", err)
					}
				}
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/keepalive") ||
				strings.HasPrefix(path, "/api/ws/") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
		},
		ErrorMessage: "Request timeout",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/api/ws/") ||
				strings.HasPrefix(c.Request().URL.Path, "/api/images/raw/")
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: cfg.Storage.MaxUploadSize,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path != "/api/images"
		},
	}))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// API Routes
	api.SetupMiddleware(e)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:          imageStore,
		Sessions:       sessionMgr,
		Catalog:        catalog,
		Hub:            hub,
		Stats:          stats,
		DefinitionsDir: cfg.Storage.DefinitionsDirectory,
		MaxMessageSize: int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Version:        Version,
	}))

	// Register embedded client if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			fmt.Printf("Warning: failed to register static routes: %v\n", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	journalState := "disabled"
	if events != nil {
		journalState = "in-memory"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           nb-picture Server                               ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Journal:    %-45s║\n", journalState)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Images:    %-46s║\n", cfg.Storage.ImagesDirectory)
	fmt.Printf("║  Defs:      %-46s║\n", cfg.Storage.DefinitionsDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("[Server] %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	klog.Info("[Server] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		klog.Errorf("[Server] shutdown: %v", err)
	}

	sessionMgr.Close()
	if events != nil {
		if err := events.Close(); err != nil {
			klog.Errorf("[Journal] close: %v", err)
		}
	}
}
