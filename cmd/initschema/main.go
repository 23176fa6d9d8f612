package main

import (
	"database/sql"
	"flag"
	"os"

	"github.com/EmpoweredVote/sr311/internal/db"
	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/seeds"
	"github.com/EmpoweredVote/sr311/internal/servicerequests"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

// Serializes concurrent schema initializers against the same database.
const schemaLockKey int64 = 0x53523331

func main() {
	var (
		dbURL    = flag.String("db", "", "DATABASE_URL (defaults to the environment)")
		logLevel = flag.String("log-level", "info", "log level")
		seed     = flag.Bool("seed", true, "insert the known request status labels")
	)
	flag.Parse()

	_ = godotenv.Load(".env.local")
	logging.Init(logging.Config{Level: *logLevel, Format: os.Getenv("LOG_FORMAT")})
	l := logging.Component("initschema")

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		flag.Usage()
		os.Exit(2)
	}

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open database")
	}
	defer sqlDB.Close()

	d, err := db.FromSQL(sqlDB)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to open database")
	}

	if err := db.WithAdvisoryLock(d, schemaLockKey, func(conn *gorm.DB) error {
		if err := servicerequests.Init(conn); err != nil {
			return err
		}
		if *seed {
			return seeds.SeedStatuses(conn)
		}
		return nil
	}); err != nil {
		l.Fatal().Err(err).Msg("schema initialization failed")
	}
	l.Info().Msg("Tables created successfully")
}
