package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"trovr-backend/internal/database"
	"trovr-backend/internal/logging"

	"github.com/joho/godotenv"
)

func main() {
	catalogFile := flag.String("catalog", "", "barcode catalog to load (barcode,value[,label[,weight]] per line)")
	binsFile := flag.String("bins", "", "bins to register (id[,qrcode] per line)")
	flag.Parse()

	logging.Setup(slog.LevelInfo)

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	dbType := os.Getenv("DATABASE_TYPE")
	if dbType == "" {
		dbType = database.DriverPostgres
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		slog.Error("DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	if err := run(context.Background(), dbType, dbURL, *catalogFile, *binsFile); err != nil {
		slog.Error("❌ Migration failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dbType, dbURL, catalogFile, binsFile string) error {
	db, err := database.Connect(dbType, dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}
	store := database.NewStore(db)

	if err := database.SeedFile(ctx, store, catalogFile, database.SeedCatalog); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := database.SeedFile(ctx, store, binsFile, database.SeedBins); err != nil {
		return fmt.Errorf("bins: %w", err)
	}

	containers, err := store.CountContainers(ctx)
	if err != nil {
		return err
	}
	bins, err := store.ListBins(ctx)
	if err != nil {
		return err
	}

	// Display results
	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Catalog containers:      %d\n", containers)
	fmt.Printf("Registered bins:         %d\n", len(bins))
	fmt.Println("============================================================")
	return nil
}
