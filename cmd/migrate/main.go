// Command migrate applies the schema for the persistent models.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"vibefeed/internal/config"
	"vibefeed/internal/database"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|status>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Open directly so production configs are not auto-migrated on connect.
	db, err := gorm.Open(postgres.Open(database.DSN(cfg)), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(flag.Arg(0))) {
	case "up":
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Println("schema migrated")
	case "status":
		for _, m := range database.PersistentModels() {
			stmt := &gorm.Statement{DB: db}
			if err := stmt.Parse(m); err != nil {
				return fmt.Errorf("parse model: %w", err)
			}
			log.Printf("%-16s exists=%t", stmt.Schema.Table, db.Migrator().HasTable(m))
		}
	default:
		return usage()
	}
	return nil
}
