package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/geckom/smartcharge-predictor/internal/auth"
	"github.com/geckom/smartcharge-predictor/internal/config"
	"github.com/geckom/smartcharge-predictor/internal/db"
	"github.com/geckom/smartcharge-predictor/internal/engine"
	"github.com/geckom/smartcharge-predictor/internal/events"
	"github.com/geckom/smartcharge-predictor/internal/handlers"
	"github.com/geckom/smartcharge-predictor/internal/history"
	"github.com/geckom/smartcharge-predictor/internal/ingest"
	"github.com/geckom/smartcharge-predictor/internal/live"
	"github.com/geckom/smartcharge-predictor/internal/middleware"
	"github.com/geckom/smartcharge-predictor/internal/model"
	"github.com/geckom/smartcharge-predictor/internal/notify"
	"github.com/geckom/smartcharge-predictor/internal/version"
)

const (
	serverVersion = "1.0.0"
	trainingSeed  = 42
)

// ─── Database adapters ───────────────────────────────────────────────────────

type historyPersistence struct{}

func (historyPersistence) Load(deviceID string) ([]byte, error) { return db.LoadHistoryBlob(deviceID) }
func (historyPersistence) Save(deviceID string, blob []byte) error {
	return db.SaveHistoryBlob(deviceID, blob)
}
func (historyPersistence) Delete(deviceID string) error { return db.DeleteHistoryBlob(deviceID) }
func (historyPersistence) List() ([]string, error)      { return db.ListHistoryBlobs() }

type modelStateStore struct{}

func (modelStateStore) LoadState(deviceID string) ([]byte, error) { return db.LoadModelState(deviceID) }
func (modelStateStore) SaveState(deviceID string, blob []byte) error {
	return db.SaveModelState(deviceID, blob)
}
func (modelStateStore) DeleteState(deviceID string) error { return db.DeleteModelState(deviceID) }

type deviceRegistry struct{}

func (deviceRegistry) CreateDevice(rec engine.DeviceRecord) error {
	return db.CreateDevice(rec.ID, rec.Name, rec.Config)
}

func (deviceRegistry) UpdateDevice(rec engine.DeviceRecord) error {
	return db.UpdateDeviceConfig(rec.ID, rec.Name, rec.Config)
}

func (deviceRegistry) DeleteDevice(id string) error { return db.DeleteDevice(id) }

func (deviceRegistry) ListDevices() ([]engine.DeviceRecord, error) {
	devices, err := db.ListDevices()
	if err != nil {
		return nil, err
	}
	records := make([]engine.DeviceRecord, 0, len(devices))
	for _, d := range devices {
		records = append(records, engine.DeviceRecord{ID: d.ID, Name: d.Name, Config: d.Config})
	}
	return records, nil
}

// ─── Entrypoint ──────────────────────────────────────────────────────────────

func main() {
	var args struct {
		Port    string `arg:"-p,--port" help:"listen port (overrides PORT)"`
		DBPath  string `arg:"--db" help:"sqlite database path (overrides DB_PATH)"`
		NoLearn bool   `arg:"--no-learn" help:"disable model training entirely"`
	}
	arg.MustParse(&args)

	cfg := config.Load()
	if args.Port != "" {
		cfg.Port = args.Port
	}
	if args.DBPath != "" {
		cfg.DBPath = args.DBPath
	}

	if err := db.Init(cfg.DBPath); err != nil {
		log.Fatalf("❌ Database init failed: %v", err)
	}
	defer db.DB.Close()
	log.Printf("✅ Database connected (%s)", cfg.DBPath)

	auth.CreateDefaultAdmin(cfg)

	// Expired sessions are swept hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			auth.CleanupExpiredSessions()
		}
	}()

	bus := events.NewBus()

	store := history.NewStore(historyPersistence{}, cfg.FlushInterval)
	if err := store.Load(); err != nil {
		log.Printf("Warning: could not restore histories: %v", err)
	}

	backend := model.NewBuiltinBackend(trainingSeed)
	if args.NoLearn {
		backend = model.UnavailableBackend()
		log.Println("[Model] learning disabled, empirical predictions only")
	}

	manager := engine.NewManager(store, modelStateStore{}, deviceRegistry{}, backend, model.DefaultConfig(), bus)
	if err := manager.LoadDevices(); err != nil {
		log.Fatalf("❌ Device load failed: %v", err)
	}

	// Debounced history flushes.
	flushDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-flushDone:
				return
			case now := <-ticker.C:
				if err := store.FlushIfDue(now); err != nil {
					log.Printf("Warning: history flush failed: %v", err)
				}
			}
		}
	}()

	dispatcher := notify.NewDispatcher(db.DB, bus, nil)
	dispatcher.Start()

	hub := live.NewHub(bus)
	hub.Start()

	var mqttBridge *ingest.MQTT
	if cfg.MQTTBroker != "" {
		mqttBridge = ingest.NewMQTT(cfg.MQTTBroker, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTTopic, manager)
		if err := mqttBridge.Connect(); err != nil {
			log.Printf("Warning: MQTT connect failed, readings over MQTT disabled: %v", err)
			mqttBridge = nil
		}
	}

	mux := http.NewServeMux()
	protect := func(next http.HandlerFunc) http.HandlerFunc {
		return auth.Middleware(cfg, next)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("SmartCharge Predictor is Online 🔋"))
	})

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)
	mux.HandleFunc("GET /api/auth/status", auth.Status(cfg))
	mux.HandleFunc("POST /api/auth/login", loginLimiter.Limit(auth.Login(cfg)))
	mux.HandleFunc("POST /api/auth/logout", auth.Logout)
	mux.HandleFunc("GET /api/auth/user", protect(auth.GetCurrentUser))
	mux.HandleFunc("POST /api/auth/password", protect(auth.ChangePassword))

	handlers.RegisterDeviceRoutes(mux, protect, manager)
	handlers.RegisterNotificationRoutes(mux, protect, db.DB, notify.ShoutrrrSender{})
	mux.HandleFunc("GET /api/live", hub.HandleConnection)

	checker := version.NewChecker(serverVersion, "geckom", "smartcharge-predictor")
	mux.HandleFunc("GET /api/version", protect(handlers.CheckVersion(checker)))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.Logging(middleware.CORS(mux)),
	}

	go func() {
		log.Printf("🔋 SmartCharge Predictor listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server error: %v", err)
		}
	}()

	// Graceful shutdown: stop ingest, flush pending history, drain events.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	if mqttBridge != nil {
		mqttBridge.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}

	hub.CloseAll()
	close(flushDone)
	dispatcher.Stop()

	if err := store.FlushNow(); err != nil {
		log.Printf("Warning: final history flush failed: %v", err)
	}
	log.Println("✓ Shutdown complete")
}
