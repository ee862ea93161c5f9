package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	analysisapp "metrology-cloud/internal/analysis/application"
	analysisrepo "metrology-cloud/internal/analysis/infrastructure/postgres"
	catalog "metrology-cloud/internal/catalog/domain"
	catalogrepo "metrology-cloud/internal/catalog/infrastructure/postgres"
	custodyapp "metrology-cloud/internal/custody/application"
	custodyrepo "metrology-cloud/internal/custody/infrastructure/postgres"
	"metrology-cloud/internal/importer"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var (
		dbURL    = flag.String("db", getenvDefault("DATABASE_URL", os.Getenv("PG_DSN")), "postgres connection string")
		filePath = flag.String("file", "", "csv file to import")
		kindFlag = flag.String("kind", "", "deliveries|shipments|receipts|analyses")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if *dbURL == "" || *filePath == "" || *kindFlag == "" {
		logger.Fatal("usage: importcsv -db <dsn> -file <path> -kind <kind>")
	}
	kind, err := importer.ParseKind(*kindFlag)
	if err != nil {
		logger.Fatal(err)
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		logger.Fatalf("read file error: %v", err)
	}

	db, err := sql.Open("pgx", *dbURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	instrumentRepo := catalogrepo.NewInstrumentRepository(db)
	pointRepo := catalogrepo.NewPointRepository(db)
	referenceRepo := catalogrepo.NewReferenceRepository(db)
	ledgerRepo := custodyrepo.NewLedgerRepository(db)

	directory := catalogDirectory{instruments: instrumentRepo, references: referenceRepo}
	custodyService, err := custodyapp.NewService(ledgerRepo, directory, logger)
	if err != nil {
		logger.Fatalf("custody service error: %v", err)
	}
	analysisService, err := analysisapp.NewService(analysisrepo.NewResultRepository(db), pointRepo, ledgerRepo)
	if err != nil {
		logger.Fatalf("analysis service error: %v", err)
	}

	cfg, err := importer.LoadConfig()
	if err != nil {
		logger.Fatalf("importer config error: %v", err)
	}
	importerDirectory, err := importer.NewCatalogDirectory(instrumentRepo, pointRepo, referenceRepo)
	if err != nil {
		logger.Fatalf("importer directory error: %v", err)
	}
	csvImporter, err := importer.New(cfg, custodyService, analysisService, importerDirectory)
	if err != nil {
		logger.Fatalf("importer error: %v", err)
	}

	summary, err := csvImporter.Import(context.Background(), kind, data)
	if err != nil {
		logger.Fatalf("import error: %v", err)
	}

	fmt.Printf("%s: %d rows, %d imported, %d failed\n", summary.Kind, summary.Total, summary.Imported, summary.Failed)
	for _, rowErr := range summary.Errors {
		fmt.Printf("  line %d: %s\n", rowErr.Line, rowErr.Message)
	}
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

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
