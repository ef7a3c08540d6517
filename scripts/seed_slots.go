package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"adspot/internal/config"
	"adspot/internal/database"
	"adspot/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type PlacementsConfig struct {
	Placements []models.Placement `yaml:"placements"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		placementsPath = flag.String("placements", "configs/placements.yaml", "path to placements.yaml")
		dbPath         = flag.String("db", "./data/adspot.db", "path to sqlite db")
		fromStr        = flag.String("from", "", "first date to seed (YYYY-MM-DD)")
		toStr          = flag.String("to", "", "last date to seed (YYYY-MM-DD)")
		positions      = flag.Int64("positions", 5, "positions per placement per day")
		price          = flag.Int64("price", 100000, "slot price in kopecks")
	)
	flag.Parse()

	from, err := time.Parse(models.DateLayout, *fromStr)
	if err != nil {
		return fmt.Errorf("parse -from: %w", err)
	}
	to, err := time.Parse(models.DateLayout, *toStr)
	if err != nil {
		return fmt.Errorf("parse -to: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("-to is before -from")
	}
	if *positions < 1 {
		return fmt.Errorf("-positions must be at least 1")
	}

	data, err := os.ReadFile(*placementsPath)
	if err != nil {
		return fmt.Errorf("read placements: %w", err)
	}
	var cfg PlacementsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse placements: %w", err)
	}
	if err = config.ValidatePlacements(cfg.Placements); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	created := 0
	skipped := 0
	for _, p := range cfg.Placements {
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			for pos := int64(1); pos <= *positions; pos++ {
				slot := models.Slot{
					Placement: p.Name,
					Date:      day,
					Position:  pos,
					Price:     *price,
				}
				if err = db.CreateSlot(ctx, &slot); err != nil {
					var sqliteErr sqlite3.Error
					if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
						skipped++
						continue
					}
					return fmt.Errorf("create %s/%s/%d: %w", p.Name, day.Format(models.DateLayout), pos, err)
				}
				created++
			}
		}
	}

	fmt.Printf("done: created=%d skipped=%d\n", created, skipped)
	return nil
}
