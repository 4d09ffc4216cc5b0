package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/audit"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/auth"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/blob"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/metrics"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/queue"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/ratelimit"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/reportjob"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/scope"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/store"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/stream"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/telemetry"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/token"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

type serverDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type serverDBCloser interface {
	serverDB
	Close()
}

type Server struct {
	DB                  serverDB
	Cache               store.Cache
	Blob                blob.Store
	Tokens              *token.Service
	Reports             *reportjob.Manager
	Worker              *reportjob.Worker
	Audit               *audit.Trail
	Metrics             *metrics.Registry
	Events              *stream.Hub
	RateLimiter         ratelimit.Limiter
	RateLimitEnabled    bool
	AuthAttemptsPerWin  int
	MaxUploadBytes      int64
	MaxRequestBodyBytes int64
	UserCacheTTL        time.Duration
	WorkerInterval      time.Duration
	StaleJobAge         time.Duration
	SweepInterval       time.Duration
}

type initTelemetryFunc func(ctx context.Context, service string) (func(context.Context) error, error)
type openDBFunc func(ctx context.Context) (serverDBCloser, error)
type openRedisFunc func(ctx context.Context) (*redis.Client, error)
type openBlobFunc func(ctx context.Context) (blob.Store, error)
type listenFunc func(server *http.Server) error
type startLoopsFunc func(s *Server)

// Testable variables for main()
var (
	logFatalf      = log.Fatalf
	initTelemetryG = telemetry.Init
	openDBFnG      = func(ctx context.Context) (serverDBCloser, error) { return store.NewPostgresPool(ctx) }
	openRedisFnG   = store.NewRedis
	openBlobFnG    = blob.NewFromEnv
	listenFnG      = func(server *http.Server) error { return server.ListenAndServe() }
	startLoopsFnG  = func(s *Server) { s.startLoops(context.Background()) }
)

func main() {
	if err := runServer(initTelemetryG, openDBFnG, openRedisFnG, openBlobFnG, listenFnG, startLoopsFnG); err != nil {
		logFatalf("server: %v", err)
	}
}

func runServer(
	initTelemetry initTelemetryFunc,
	openDB openDBFunc,
	openRedis openRedisFunc,
	openBlob openBlobFunc,
	listen listenFunc,
	startLoops startLoopsFunc,
) error {
	ctx := context.Background()
	shutdown, err := initTelemetry(ctx, "legaldash")
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pool, err := openDB(ctx)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisClient, err := openRedis(ctx)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory cache/limits: %v", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := store.NewCache(ctx, redisClient)

	blobStore, err := openBlob(ctx)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	secret := env("JWT_SECRET", "")
	tokenTTL := time.Hour * time.Duration(envInt("TOKEN_TTL_HOURS", 0))
	tokens, err := token.NewService(secret, tokenTTL)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}

	rateLimitEnabled := env("RATE_LIMIT_ENABLED", "true") == "true"
	rateLimitWindow := time.Second * time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60))
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	maxUploadBytes := int64(envInt("MAX_UPLOAD_BYTES", 5<<20))
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	maxRequestBodyBytes := int64(envInt("MAX_REQUEST_BODY_BYTES", 1<<20))
	if maxRequestBodyBytes <= 0 {
		maxRequestBodyBytes = 1 << 20
	}
	if maxRequestBodyBytes < maxUploadBytes {
		// multipart uploads need headroom for the form envelope
		maxRequestBodyBytes = maxUploadBytes + 64<<10
	}

	s := &Server{
		DB:                  pool,
		Cache:               cache,
		Blob:                blobStore,
		Tokens:              tokens,
		Audit:               &audit.Trail{DB: pool},
		Metrics:             metrics.NewRegistry(),
		Events:              stream.NewHub(),
		RateLimitEnabled:    rateLimitEnabled,
		AuthAttemptsPerWin:  envInt("AUTH_ATTEMPTS_PER_WINDOW", 5),
		MaxUploadBytes:      maxUploadBytes,
		MaxRequestBodyBytes: maxRequestBodyBytes,
		UserCacheTTL:        time.Second * time.Duration(envInt("USER_CACHE_TTL_SEC", 30)),
		WorkerInterval:      time.Second * time.Duration(envInt("WORKER_SCAN_INTERVAL_SEC", 2)),
		StaleJobAge:         time.Minute * time.Duration(envInt("STALE_JOB_AGE_MIN", 15)),
		SweepInterval:       time.Minute * time.Duration(envInt("STALE_SWEEP_INTERVAL_MIN", 5)),
	}
	if s.RateLimitEnabled {
		if redisClient != nil {
			s.RateLimiter = ratelimit.NewRedis(redisClient, rateLimitWindow)
		} else {
			s.RateLimiter = ratelimit.NewInMemory(rateLimitWindow)
		}
	}
	s.Worker = &reportjob.Worker{
		DB:   pool,
		Blob: blobStore,
		OnTransition: func(jobID, from, to string) {
			s.Metrics.IncJobState(to)
			s.Events.Publish(stream.JobTransition(jobID, from, to))
		},
	}
	s.Reports = &reportjob.Manager{
		DB:   pool,
		Blob: blobStore,
		Dispatch: func(jobID string) {
			go func() {
				if err := s.Worker.Process(context.Background(), jobID); err != nil {
					log.Printf("report %s: %v", jobID, err)
				}
			}()
		},
	}

	r := chi.NewRouter()
	r.Use(httpx.CORSMiddleware(env("CORS_ALLOWED_ORIGINS", "")))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(telemetry.HTTPMiddleware("legaldash"))
	r.Use(s.limitRequestBodyMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, 200, map[string]string{"status": "ok", "service": "legaldash"})
	})

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)

	authRouter := chi.NewRouter()
	authRouter.Use(auth.Middleware(s.Tokens, s))
	authRouter.Get("/api/auth/me", s.handleMe)
	authRouter.Post("/api/auth/logout", s.handleLogout)
	authRouter.Get("/api/users/profile", s.handleGetProfile)
	authRouter.Put("/api/users/profile", s.handleUpdateProfile)
	authRouter.Put("/api/users/password", s.handleChangePassword)

	authRouter.Get("/api/cases", s.handleListCases)
	authRouter.Post("/api/cases", s.handleCreateCase)
	authRouter.Put("/api/cases/{id}", s.handleUpdateCase)
	authRouter.Delete("/api/cases/{id}", s.handleDeleteCase)
	authRouter.Post("/api/cases/{id}/upload", s.handleUploadDocument)
	authRouter.Get("/api/cases/{id}/documents/{docID}", s.handleDownloadDocument)
	authRouter.Post("/api/cases/{id}/comments", s.handleAddComment)

	authRouter.Get("/api/clients", s.handleListClients)
	authRouter.Post("/api/clients", s.handleCreateClient)
	authRouter.Put("/api/clients/{id}", s.handleUpdateClient)
	authRouter.Delete("/api/clients/{id}", s.handleDeleteClient)

	authRouter.Get("/api/tasks", s.handleListTasks)
	authRouter.Post("/api/tasks", s.handleCreateTask)
	authRouter.Put("/api/tasks/{id}", s.handleUpdateTask)
	authRouter.Delete("/api/tasks/{id}", s.handleDeleteTask)

	authRouter.Post("/api/reports", s.handleCreateReport)
	authRouter.Get("/api/reports", s.handleListReports)
	authRouter.Get("/api/reports/summary", s.handleReportSummary)
	authRouter.Get("/api/reports/charts", s.handleReportCharts)
	authRouter.Get("/api/reports/{id}", s.handleGetReport)
	authRouter.Put("/api/reports/{id}", s.handleUpdateReport)
	authRouter.Get("/api/reports/{id}/download", s.handleDownloadReport)
	authRouter.Delete("/api/reports/{id}", s.handleDeleteReport)

	authRouter.Get("/api/audit", s.handleAuditLog)

	authRouter.Get("/metrics", s.Metrics.Handler())
	r.Mount("/", authRouter)

	if startLoops != nil {
		startLoops(s)
	}

	addr := env("ADDR", ":8080")
	log.Printf("legaldash listening on %s", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: envDurationSec("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		ReadTimeout:       envDurationSec("HTTP_READ_TIMEOUT_SEC", 15),
		WriteTimeout:      envDurationSec("HTTP_WRITE_TIMEOUT_SEC", 30),
		IdleTimeout:       envDurationSec("HTTP_IDLE_TIMEOUT_SEC", 120),
	}
	if listen == nil {
		return errors.New("listen function required")
	}
	return listen(server)
}

// startLoops runs the report worker scan, the stale-job sweep, the event
// consumer, and the optional kafka consumer.
func (s *Server) startLoops(ctx context.Context) {
	go s.Worker.Run(ctx, s.WorkerInterval)
	go s.sweepLoop(ctx)
	go s.consumeEvents(ctx, s.Events.Subscribe(64))
	if brokers := env("KAFKA_BROKERS", ""); brokers != "" {
		consumer, err := queue.NewJobConsumer(queue.Config{
			Brokers: strings.Split(brokers, ","),
			Topic:   env("KAFKA_REPORT_TOPIC", "report-jobs"),
			GroupID: env("KAFKA_GROUP_ID", "legaldash-workers"),
		})
		if err != nil {
			log.Printf("kafka consumer disabled: %v", err)
		} else {
			go func() {
				defer consumer.Close()
				consumer.Run(ctx, s.Worker.Process)
			}()
		}
	}
}

// consumeEvents drains the hub. Worker transitions happen outside any
// request, so this is where they reach the audit trail; the handlers record
// their own writes inline. Buffered events are drained before returning so
// a shutdown does not lose what was already published.
func (s *Server) consumeEvents(ctx context.Context, sub chan stream.Event) {
	defer s.Events.Unsubscribe(sub)
	var seen float64
	record := func(evt stream.Event) {
		seen++
		s.Metrics.SetGauge("stream_events_consumed", seen)
		s.recordStreamEvent(evt)
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case evt, ok := <-sub:
					if !ok {
						return
					}
					record(evt)
				default:
					return
				}
			}
		case evt, ok := <-sub:
			if !ok {
				return
			}
			record(evt)
		}
	}
}

func (s *Server) recordStreamEvent(evt stream.Event) {
	if evt.Type != "report.transition" {
		return
	}
	var tr struct {
		JobID string `json:"jobId"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	if err := json.Unmarshal(evt.Data, &tr); err != nil || tr.JobID == "" {
		return
	}
	s.Audit.Record(context.Background(), "worker", "transition", "report", tr.JobID, tr.From+">"+tr.To)
}

func (s *Server) sweepLoop(ctx context.Context) {
	interval := s.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Worker.SweepStale(ctx, s.StaleJobAge); err != nil {
				log.Printf("stale sweep: %v", err)
			}
		}
	}
}

// LoadUser resolves a token subject, consulting the cache first. Entries are
// invalidated on profile and password writes.
func (s *Server) LoadUser(ctx context.Context, id string) (models.User, error) {
	key := userCacheKey(id)
	if cached, err := s.Cache.Get(ctx, key); err == nil {
		var user models.User
		if err := json.Unmarshal([]byte(cached), &user); err == nil && user.ID != "" {
			return user, nil
		}
	}
	user, err := s.loadUserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if encoded, err := json.Marshal(user); err == nil {
		_ = s.Cache.Set(ctx, key, string(encoded), s.UserCacheTTL)
	}
	return user, nil
}

func (s *Server) loadUserByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	var role string
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, auth.ErrUserGone
		}
		return models.User{}, err
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		return models.User{}, err
	}
	user.Role = parsed
	return user, nil
}

func (s *Server) invalidateUser(ctx context.Context, id string) {
	_ = s.Cache.Del(ctx, userCacheKey(id))
}

func userCacheKey(id string) string { return "user:" + id }

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(statusCode int) {
	s.code = statusCode
	s.ResponseWriter.WriteHeader(statusCode)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next.ServeHTTP(rec, r)
		s.Metrics.Observe(r.Method+" "+r.URL.Path, rec.code, time.Since(start))
	})
}

func (s *Server) limitRequestBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.MaxRequestBodyBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.MaxRequestBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

type scopeCtx = scope.AuthContext

// requireAuth pulls the AuthContext attached by the access guard; routes
// mounted on the auth subrouter always have one.
func requireAuth(w http.ResponseWriter, r *http.Request) (scopeCtx, bool) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "authorization required")
		return scopeCtx{}, false
	}
	return ac, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envDurationSec(k string, def int) time.Duration {
	return time.Second * time.Duration(envInt(k, def))
}
