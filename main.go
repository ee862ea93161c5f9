package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	analysisapp "metrology-cloud/internal/analysis/application"
	analysisrepo "metrology-cloud/internal/analysis/infrastructure/postgres"
	analysishttp "metrology-cloud/internal/analysis/interfaces/http"
	"metrology-cloud/internal/audit"
	"metrology-cloud/internal/auth"
	catalogapp "metrology-cloud/internal/catalog/application"
	catalog "metrology-cloud/internal/catalog/domain"
	catalogrepo "metrology-cloud/internal/catalog/infrastructure/postgres"
	cataloghttp "metrology-cloud/internal/catalog/interfaces/http"
	complianceapp "metrology-cloud/internal/compliance/application"
	compliancerepo "metrology-cloud/internal/compliance/infrastructure/postgres"
	compliancehttp "metrology-cloud/internal/compliance/interfaces/http"
	custodyapp "metrology-cloud/internal/custody/application"
	custodyrepo "metrology-cloud/internal/custody/infrastructure/postgres"
	custodyhttp "metrology-cloud/internal/custody/interfaces/http"
	"metrology-cloud/internal/importer"
	"metrology-cloud/internal/observability/metrics"
	"metrology-cloud/internal/signature"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)
	badgeResolver := auth.NewBadgeResolver(db)

	instrumentRepo := catalogrepo.NewInstrumentRepository(db)
	pointRepo := catalogrepo.NewPointRepository(db)
	referenceRepo := catalogrepo.NewReferenceRepository(db)

	catalogService, err := catalogapp.NewService(instrumentRepo, pointRepo)
	if err != nil {
		logger.Fatalf("catalog service error: %v", err)
	}

	signatureStore, err := signature.NewFSStore(cfg.SignatureDir)
	if err != nil {
		logger.Fatalf("signature store error: %v", err)
	}

	ledgerRepo := custodyrepo.NewLedgerRepository(db)
	directory := catalogDirectory{instruments: instrumentRepo, references: referenceRepo}
	custodyService, err := custodyapp.NewService(ledgerRepo, directory, logger, custodyapp.WithSignatureStore(signatureStore))
	if err != nil {
		logger.Fatalf("custody service error: %v", err)
	}

	resultRepo := analysisrepo.NewResultRepository(db)
	analysisService, err := analysisapp.NewService(resultRepo, pointRepo, ledgerRepo)
	if err != nil {
		logger.Fatalf("analysis service error: %v", err)
	}

	statusQuery := compliancerepo.NewStatusQuery(db)
	complianceService, err := complianceapp.NewService(statusQuery)
	if err != nil {
		logger.Fatalf("compliance service error: %v", err)
	}

	importerCfg, err := importer.LoadConfig()
	if err != nil {
		logger.Fatalf("importer config error: %v", err)
	}
	importerDirectory, err := importer.NewCatalogDirectory(instrumentRepo, pointRepo, referenceRepo)
	if err != nil {
		logger.Fatalf("importer directory error: %v", err)
	}
	csvImporter, err := importer.New(importerCfg, custodyService, analysisService, importerDirectory)
	if err != nil {
		logger.Fatalf("importer error: %v", err)
	}

	complianceHandler, err := compliancehttp.NewHandler(complianceService)
	if err != nil {
		logger.Fatalf("compliance handler error: %v", err)
	}
	catalogHandler, err := cataloghttp.NewHandler(catalogService, referenceRepo, complianceHandler, auditRepo)
	if err != nil {
		logger.Fatalf("catalog handler error: %v", err)
	}
	custodyHandler, err := custodyhttp.NewHandler(custodyService, badgeResolver, auditRepo)
	if err != nil {
		logger.Fatalf("custody handler error: %v", err)
	}
	analysisHandler, err := analysishttp.NewHandler(analysisService, badgeResolver, auditRepo)
	if err != nil {
		logger.Fatalf("analysis handler error: %v", err)
	}
	importHandler, err := importer.NewHandler(csvImporter, auditRepo)
	if err != nil {
		logger.Fatalf("import handler error: %v", err)
	}

	mux := http.NewServeMux()
	complianceHandler.Register(mux)
	catalogHandler.Register(mux)
	custodyHandler.Register(mux)
	analysisHandler.Register(mux)
	importHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL  string
	HTTPAddr     string
	JWTSecret    string
	SignatureDir string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		SignatureDir: getenvDefault("SIGNATURE_DIR", "var/signatures"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ---- Adapters ----

type catalogDirectory struct {
	instruments *catalogrepo.InstrumentRepository
	references  *catalogrepo.ReferenceRepository
}

func (d catalogDirectory) GetInstrument(ctx context.Context, id int64) (*catalog.Instrument, error) {
	return d.instruments.Get(ctx, id)
}

func (d catalogDirectory) GetEmployee(ctx context.Context, id int64) (*catalog.Employee, error) {
	return d.references.GetEmployee(ctx, id)
}

func (d catalogDirectory) GetLaboratory(ctx context.Context, id int64) (*catalog.Laboratory, error) {
	return d.references.GetLaboratory(ctx, id)
}
