package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"offersync/internal/database"
	"offersync/internal/models"
	"offersync/internal/store"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type OffersFile struct {
	Offers []struct {
		ID                string    `yaml:"id"`
		OfferedAt         time.Time `yaml:"offered_at"`
		ExpiresAt         time.Time `yaml:"expires_at"`
		NextAvailableDate time.Time `yaml:"next_available_date"`
	} `yaml:"offers"`
}

// Seeds a local offer database from YAML, e.g. for demos without a backend.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		offersPath = flag.String("offers", "configs/offers.yaml", "path to offers.yaml")
		dbPath     = flag.String("db", "./data/offersync.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*offersPath)
	if err != nil {
		return fmt.Errorf("read offers: %w", err)
	}
	var file OffersFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse offers: %w", err)
	}
	if len(file.Offers) == 0 {
		return fmt.Errorf("no offers in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// No gateway: seeding never accepts or declines.
	s := store.New(db, nil, nil, store.WithLogger(&logger))
	if err := s.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("existing state partially loaded")
	}

	added, replaced := 0, 0
	for _, o := range file.Offers {
		if o.ID == "" {
			continue
		}
		if _, ok := s.GetOffer(o.ID); ok {
			replaced++
		} else {
			added++
		}
		err := s.AddOffer(ctx, models.Offer{
			ID:                o.ID,
			OfferedAt:         o.OfferedAt,
			ExpiresAt:         o.ExpiresAt,
			NextAvailableDate: o.NextAvailableDate,
		})
		if err != nil {
			return fmt.Errorf("add %s: %w", o.ID, err)
		}
	}

	keys, err := db.Keys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	logger.Info().
		Int("added", added).
		Int("replaced", replaced).
		Int("pending", len(s.PendingOffers())).
		Strs("keys", keys).
		Msg("offers seeded")
	return nil
}
