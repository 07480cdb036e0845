package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/hoponpass/daypass-backend/internal/config"
	"github.com/hoponpass/daypass-backend/internal/database"
)

// tables in dependency order
var tables = []string{
	"chat_messages",
	"chat_conversations",
	"pickup_requests",
	"bookings",
	"verification_attempts",
}

func main() {
	var (
		dbURLFlag string
		olderThan int
		all       bool
	)
	pflag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	pflag.IntVarP(&olderThan, "older-than-days", "d", 30, "purge closed chats and pickup requests older than this")
	pflag.BoolVar(&all, "all", false, "truncate every table (local environments only)")
	pflag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if all {
		fmt.Println("Connected to database. Truncating tables...")
		if _, err := db.Exec("TRUNCATE TABLE verification_attempts, chat_messages, chat_conversations, pickup_requests, bookings CASCADE"); err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}
	} else {
		cutoff := time.Now().AddDate(0, 0, -olderThan)
		fmt.Printf("Connected to database. Purging data older than %s...\n", cutoff.Format("2006-01-02"))

		n, err := database.NewChatRepository(db).PurgeClosedBefore(cutoff)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("  closed conversations removed: %d\n", n)

		n, err = database.NewPickupRequestRepository(db).PurgeBefore(cutoff)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Printf("  pickup requests removed: %d\n", n)
	}

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
