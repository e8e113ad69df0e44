package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"pulse-chat/config"
	"pulse-chat/internal/repository"
	"pulse-chat/migrations"
	"pulse-chat/pkg/database"
)

const usage = `
Pulse Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up             Apply all pending migrations
  down [steps]   Roll back the given number of migrations (all when omitted)
  version        Show the current schema version
  force VERSION  Set the schema version without running migrations
  status         Show connection status and table row counts
  seed-dev       Seed development users, a private chat and a group

Flags:
  -users int     Number of development users to seed (default 5)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate down 1
  go run ./cmd/migrate force 3
  go run ./cmd/migrate seed-dev -users 8
`

var coreTables = []string{"users", "chat_sessions", "chat_participants", "chat_unread_counts", "messages", "message_receipts", "groups", "group_members"}

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	userCount := fs.Int("users", 5, "Number of development users to seed")
	_ = fs.Parse(os.Args[2:])

	cfg := config.LoadConfig()

	switch command {
	case "up":
		withMigrator(cfg, func(m *database.Migrator) error {
			log.Println("Running migrations up...")
			return m.Up()
		})
		log.Println("Migrations completed successfully")
	case "down":
		steps := 0
		if fs.NArg() > 0 {
			steps = mustAtoi(fs.Arg(0))
		}
		withMigrator(cfg, func(m *database.Migrator) error {
			log.Println("Rolling back migrations...")
			return m.Down(steps)
		})
		log.Println("Rollback completed successfully")
	case "version":
		withMigrator(cfg, func(m *database.Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			log.Printf("Schema version: %d (dirty: %t)", version, dirty)
			return nil
		})
	case "force":
		if fs.NArg() < 1 {
			log.Fatal("force requires a version")
		}
		version := mustAtoi(fs.Arg(0))
		withMigrator(cfg, func(m *database.Migrator) error {
			return m.Force(version)
		})
		log.Printf("Schema version forced to %d", version)
	case "status":
		showStatus(cfg)
	case "seed-dev":
		runSeedDevelopment(cfg, *userCount)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func withMigrator(cfg *config.Config, fn func(*database.Migrator) error) {
	m, err := database.NewMigrator(cfg.DatabaseURL(), migrations.FS)
	if err != nil {
		log.Fatalf("Failed to open migrations: %v", err)
	}
	defer m.Close()
	if err := fn(m); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("Invalid number %q", s)
	}
	return n
}

func showStatus(cfg *config.Config) {
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close(db)

	if err := database.HealthCheck(context.Background(), db); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	for _, table := range coreTables {
		if !database.TableExists(db, table) {
			log.Printf("Table %-20s does not exist", table)
			continue
		}
		count, err := database.TableCount(db, table)
		if err != nil {
			log.Printf("Error counting table %s: %v", table, err)
			continue
		}
		log.Printf("Table %-20s exists (%d rows)", table, count)
	}
}

func runSeedDevelopment(cfg *config.Config, userCount int) {
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close(db)

	seedCfg := database.DefaultSeedConfig()
	seedCfg.TestUserCount = userCount
	seedCfg.InviteBaseURL = cfg.InviteBaseURL

	result, err := database.Seed(context.Background(), repository.NewGormStore(db), seedCfg)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seed summary:")
	log.Printf("   - Users: %d", len(result.Users))
	log.Printf("   - Sessions: %d", len(result.Sessions))
	if result.Group != nil {
		log.Printf("   - Group: %s (invite code %s)", result.Group.Name, result.Group.InviteCode)
	}
}
