package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"geoclim/internal/app"
	"geoclim/internal/config"
	"geoclim/migrations"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	if *direction != "up" && *direction != "down" {
		fmt.Fprintf(os.Stderr, "Invalid direction %q: expected up or down\n", *direction)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", app.DatabaseConfig(cfg).DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Println("Connected to database successfully")

	names := migrations.Names()
	if *direction == "down" {
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
	}

	for _, name := range names {
		content, err := migrations.Load(name, *direction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read migration %s: %v\n", name, err)
			os.Exit(1)
		}

		fmt.Printf("Running migration: %s.%s\n", name, *direction)
		if _, err := db.Exec(content); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to execute migration %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	fmt.Println("Migration completed successfully")
}
