package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const migrationsDir = "migrations"

type migration struct {
	version int
	name    string
	path    string
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up or down")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	switch strings.ToLower(*mode) {
	case "up":
		if err := apply(db, "up"); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Println("Migration up completed successfully")
	case "down":
		if err := apply(db, "down"); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("Migration down completed successfully")
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

func apply(db *sql.DB, kind string) error {
	files, err := loadMigrations(kind)
	if err != nil {
		return err
	}
	if kind == "down" {
		sort.Slice(files, func(i, j int) bool { return files[i].version > files[j].version })
	}

	for _, m := range files {
		applied, err := alreadyApplied(db, m.version)
		if err != nil {
			return err
		}
		if kind == "up" && applied {
			continue
		}
		if kind == "down" && !applied {
			continue
		}

		log.Printf("Applying %s %03d: %s", kind, m.version, m.name)
		content, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed applying %s: %w", m.path, err)
		}

		if kind == "up" {
			_, err = db.Exec("INSERT INTO schema_migrations(version, name, applied_at) VALUES($1,$2,$3)", m.version, m.name, time.Now())
		} else {
			_, err = db.Exec("DELETE FROM schema_migrations WHERE version=$1", m.version)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func loadMigrations(kind string) ([]migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, err
	}
	suffix := "." + kind + ".sql"

	var files []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			log.Printf("skip migration without version prefix: %s", name)
			continue
		}
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			log.Printf("skip migration with non-numeric version: %s", name)
			continue
		}
		files = append(files, migration{
			version: ver,
			name:    strings.TrimSuffix(parts[1], suffix),
			path:    filepath.Join(migrationsDir, name),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func alreadyApplied(db *sql.DB, version int) (bool, error) {
	var exists bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)", version).Scan(&exists)
	return exists, err
}
