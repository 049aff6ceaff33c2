package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"resusboard/internal/config"
	"resusboard/internal/database"
	"resusboard/internal/handlers"
	"resusboard/internal/jobs"
	"resusboard/internal/logging"
	"resusboard/internal/refdata"
	"resusboard/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting ResusBoard Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabasePath)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Reference data
	guide, err := refdata.NewGuideService(cfg.DrugGuidePath)
	if err != nil {
		log.Fatalf("❌ Failed to load drug guide: %v", err)
	}
	hospitals := refdata.NewHospitalService(cfg.HospitalDataPath, cfg.HospitalID)

	// Core services
	bus := services.NewEventBus()
	store := services.NewEpisodeStore(db, cfg.ArchiveLimit)
	settingsService := services.NewSettingsService(store, bus)
	episodeService := services.NewEpisodeService(store, bus, settingsService)
	logService := services.NewLogService(episodeService)
	connManager := services.NewConnectionManager()

	alertEngine := services.NewAlertEngine(episodeService, settingsService, bus)
	alertEngine.Start()

	// Background maintenance
	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("archive_trim", jobs.NewArchiveTrimJob(store))
	jobScheduler.Start()

	// Hot-reload the drug guide when the file changes on disk
	go startGuideFileWatcher(cfg.DrugGuidePath, guide)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ResusBoard v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    2 * 1024 * 1024, // Episode documents are small, 2MB is generous
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	if cfg.MetricsEnabled {
		prometheus := fiberprometheus.New("resusboard")
		prometheus.RegisterAt(app, "/metrics")
		app.Use(prometheus.Middleware)
		log.Println("📊 Prometheus metrics endpoint enabled at /metrics")
	}

	// Fiber's CORS middleware does not allow AllowCredentials with wildcard
	// origins. Credentials are not needed here, the board has no accounts.
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(connManager, episodeService)
	episodeHandler := handlers.NewEpisodeHandler(episodeService)
	logHandler := handlers.NewLogHandler(logService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	archiveHandler := handlers.NewArchiveHandler(store, episodeService, bus)
	dosingHandler := handlers.NewDosingHandler(guide, hospitals)
	exportHandler := handlers.NewExportHandler(episodeService, store)
	wsHandler := handlers.NewWebSocketHandler(connManager, bus, episodeService, settingsService)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")

	api.Get("/episode", episodeHandler.Get)
	api.Post("/episode/start", episodeHandler.Start)
	api.Post("/episode/end", episodeHandler.End)
	api.Post("/episode/reset", episodeHandler.Reset)
	api.Post("/episode/adrenaline", episodeHandler.Adrenaline)
	api.Post("/episode/adrenaline/rearm", episodeHandler.RearmAdrenaline)
	api.Post("/episode/shock", episodeHandler.Shock)
	api.Post("/episode/massager/rearm", episodeHandler.RearmMassager)
	api.Put("/episode/sections", episodeHandler.UpdateSections)

	api.Get("/log", logHandler.List)
	api.Post("/log", logHandler.Add)
	api.Put("/log/patient", logHandler.SetPatient)
	api.Put("/log/:id", logHandler.Update)
	api.Delete("/log/:id", logHandler.Delete)

	api.Get("/settings", settingsHandler.Get)
	api.Put("/settings", settingsHandler.Update)
	api.Post("/settings/reset", settingsHandler.Reset)

	api.Get("/archive", archiveHandler.List)
	api.Delete("/archive", archiveHandler.Clear)
	api.Get("/archive/:id", archiveHandler.Get)
	api.Post("/archive/:id/restore", archiveHandler.Restore)
	api.Delete("/archive/:id", archiveHandler.Delete)

	api.Get("/dosing/sheet", dosingHandler.Sheet)
	api.Get("/dosing/drug/:id", dosingHandler.Drug)
	api.Get("/dosing/drip/:id", dosingHandler.Drip)
	api.Get("/refdata/guide", dosingHandler.Guide)
	api.Get("/refdata/hospitals", dosingHandler.Hospitals)
	api.Get("/refdata/hospital", dosingHandler.SelectedHospital)

	api.Get("/export/episode", exportHandler.Episode)
	api.Get("/export/archive/:id", exportHandler.Archived)

	// WebSocket route
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/board", websocket.New(wsHandler.Handle))

	// Serve the built frontend when configured
	if cfg.StaticDir != "" {
		if _, err := os.Stat(cfg.StaticDir); err == nil {
			app.Static("/", cfg.StaticDir, fiber.Static{
				Compress:      true,
				CacheDuration: 24 * time.Hour,
			})
			// SPA fallback: serve index.html for frontend routes only
			app.Get("/*", func(c *fiber.Ctx) error {
				path := c.Path()
				if strings.HasPrefix(path, "/api/") ||
					strings.HasPrefix(path, "/ws/") ||
					path == "/health" ||
					path == "/metrics" {
					return c.Next()
				}
				return c.SendFile(filepath.Join(cfg.StaticDir, "index.html"))
			})
			log.Printf("🌐 Frontend serving from %s", cfg.StaticDir)
		} else {
			log.Printf("⚠️  STATIC_DIR set but directory %s not found", cfg.StaticDir)
		}
	}

	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("🔗 WebSocket endpoint: ws://localhost:%s/ws/board", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()
		alertEngine.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// startGuideFileWatcher watches the drug guide for changes and hot-reloads it
func startGuideFileWatcher(filePath string, guide *refdata.GuideService) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching
	// the file directly, editors replace files on save)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}

				debounceTimer = time.AfterFunc(debounceDuration, func() {
					log.Printf("🔄 Detected changes in %s, reloading drug guide...", filePath)

					if err := guide.Reload(); err != nil {
						log.Printf("❌ Failed to reload drug guide: %v", err)
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
