package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/api"
	"sheetattend/internal/attendance"
	"sheetattend/internal/audit"
	"sheetattend/internal/auth"
	"sheetattend/internal/config"
	"sheetattend/internal/export"
	"sheetattend/internal/history"
	"sheetattend/internal/queue"
	"sheetattend/internal/sheets"
	"sheetattend/internal/store"
	"sheetattend/internal/upload"
	"sheetattend/internal/users"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sheetClient, logClient, err := newSheets(ctx, cfg)
	if err != nil {
		return err
	}

	var redisClient *store.Redis
	if cfg.CacheBackend == "redis" || cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:audit")
	} else {
		q = queue.NewInMemory(256)
	}
	recorder := audit.NewQueueRecorder(q)

	var auditLog api.AuditLog
	if cfg.DatabaseURL != "" {
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("warning: audit db not reachable: %v", err)
		} else {
			defer db.Close()
			repo := audit.NewRepository(db.Client)
			if err := repo.Migrate(ctx); err != nil {
				log.Printf("warning: audit migrate failed: %v", err)
			}
			auditLog = repo
			if cfg.QueueBackend != "redis" {
				go runConsumer(ctx, q, repo)
			}
		}
	}
	if auditLog == nil && cfg.QueueBackend != "redis" {
		go runConsumer(ctx, q, audit.LogSink{})
	}

	hist := history.NewStore(logClient, cfg.HistorySheetID, "Sheet1")
	usr := users.NewStore(logClient, cfg.UserSheetID, "Sheet1", cfg.PasswordScheme)
	if cfg.HistorySheetID != "" {
		if err := hist.EnsureHeader(ctx); err != nil {
			log.Printf("warning: history sheet header: %v", err)
		}
	} else {
		log.Println("SHEET_HISTORY not set, history and sessions are disabled")
	}
	if cfg.UserSheetID != "" {
		if err := usr.EnsureHeader(ctx); err != nil {
			log.Printf("warning: user sheet header: %v", err)
		}
	} else {
		log.Println("ATTENDANCE_SHEET not set, login and signup will fail")
	}

	opts := attendance.Options{Tab: cfg.SheetTab, Sessions: hist, Audit: recorder}
	if cfg.CacheBackend == "redis" {
		opts.Cache = attendance.NewRedisCache(redisClient.Client, "attendance:snapshot:")
		opts.EventCache = attendance.NewRedisCache(redisClient.Client, "attendance:event:")
	}
	if cfg.ExportBucket != "" {
		s3Store, err := export.NewS3Store(export.S3Config{
			Bucket:    cfg.ExportBucket,
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Printf("warning: export archive disabled: %v", err)
		} else {
			opts.Archive = s3Store
			log.Println("export archive bucket:", cfg.ExportBucket)
		}
	}

	r := api.NewRouter(api.Deps{
		Config:     cfg,
		Attendance: attendance.NewService(sheetClient, opts),
		History:    hist,
		Users:      usr,
		Upload:     upload.NewService(sheetClient, hist, recorder, cfg.SheetTab),
		Audit:      recorder,
		AuditLog:   auditLog,
		Signer: auth.Signer{
			Key:        cfg.JWTSigningKey,
			Issuer:     cfg.JWTIssuer,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Redis: redisClient,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// newSheets returns the client for attendance sheets and the client for the
// history and user logs. Google writes attendance values as USER_ENTERED so
// TRUE/FALSE become checkboxes, and log rows as RAW.
func newSheets(ctx context.Context, cfg config.App) (sheets.Client, sheets.Client, error) {
	if cfg.SheetsBackend == "memory" {
		mem := sheets.NewMemory()
		seedMemory(mem, cfg)
		log.Println("using in-memory sheets backend")
		c := sheets.Instrument(mem)
		return c, c, nil
	}
	g, err := sheets.NewGoogle(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	return sheets.Instrument(g.WithInput(sheets.InputUserEntered)), sheets.Instrument(g.WithInput(sheets.InputRaw)), nil
}

func seedMemory(mem *sheets.Memory, cfg config.App) {
	if cfg.HistorySheetID != "" {
		mem.Create(cfg.HistorySheetID, "History", "Sheet1", nil)
	}
	if cfg.UserSheetID != "" {
		mem.Create(cfg.UserSheetID, "Users", "Sheet1", nil)
	}
	mem.Create("demo-event", "Demo Event", cfg.SheetTab, [][]any{
		{"name", "roll_number", "mail_id", "department", "attendance"},
		{"Asha Rao", "101", "asha@example.com", "CSE", "FALSE"},
		{"Ravi Kumar", "102", "ravi@example.com", "ECE", "FALSE"},
		{"Meera Nair", "103", "meera@example.com", "MECH", "FALSE"},
	})
}

func runConsumer(ctx context.Context, q queue.Queue, sink audit.Sink) {
	if err := audit.Consume(ctx, q, sink); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("audit consumer stopped: %v", err)
	}
}
