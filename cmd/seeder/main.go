//cmd/seeder/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/salon-messaging/internal/config"
	"github.com/unclebandit/salon-messaging/internal/db"
	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/repository"
)

func main() {
	file := flag.String("file", "seed/contacts.json", "JSON array of contacts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	config.ConfigureLogger(cfg.LogLevel)

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("read seed file")
	}
	var contacts []model.Contact
	if err := json.Unmarshal(raw, &contacts); err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("decode seed file")
	}

	store, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	repo := &repository.ContactRepository{Store: store}
	if err := repo.Replace(context.Background(), contacts); err != nil {
		log.Fatal().Err(err).Msg("write contacts")
	}
	fmt.Printf("Seeded %d contacts into %s store\n", len(contacts), cfg.StoreDriver)
}
