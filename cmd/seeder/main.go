package main

import (
	"fmt"
	"log"
	"os"

	"github.com/unclebandit/campaign-engine/internal/config"
	"github.com/unclebandit/campaign-engine/internal/db"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	seedFiles := []string{
		"schema.sql",
		"seed/recipients.sql",
		"seed/preferences.sql",
		"seed/templates.sql",
		"seed/audiences.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}
		if _, err := database.Exec(string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
