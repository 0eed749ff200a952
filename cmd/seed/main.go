package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"slotbook/internal/reservations"
	"slotbook/internal/shared/config"
	"slotbook/internal/shared/database"
	"slotbook/internal/shared/middleware"
	"slotbook/pkg/logger"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type Seeder struct {
	db     *database.DB
	engine *reservations.Engine
	cfg    *config.Config
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	cfg.Store.Driver = "postgres"
	appLogger := logger.NewWithLevel(cfg.LogLevel)

	fmt.Println("Starting slotbook seeder...")

	db, err := database.InitDB(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	store := reservations.NewGormStore(db.PostgreSQL, cfg.Database.LockTimeout)
	seeder := &Seeder{
		db:     db,
		engine: reservations.NewEngine(store, reservations.DefaultConfig(), reservations.WithLogger(appLogger)),
		cfg:    cfg,
	}

	fmt.Println("\nCleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("\nSeeding database...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	fmt.Println("\nSeeding completed.")
}

// CleanDatabase truncates the reservation tables
func (s *Seeder) CleanDatabase() error {
	tables := []string{"waitlist_entries", "bookings", "slot_seats", "slots"}

	return s.db.PostgreSQL.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			fmt.Printf("  Truncating table: %s\n", table)
			if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		return nil
	})
}

// SeedAll creates a seat-level screening, a quantity-only event showtime,
// a few bookings against them and access tokens for the demo users.
func (s *Seeder) SeedAll(ctx context.Context) error {
	users := map[string]uuid.UUID{
		"organizer": uuid.New(),
		"alice":     uuid.New(),
		"bob":       uuid.New(),
	}

	screening, err := s.engine.CreateSlot(ctx, reservations.NewSlotInput{
		ParentID:   uuid.New(),
		ParentType: reservations.ParentMovie,
		StartsAt:   time.Now().Add(48 * time.Hour),
		EndsAt:     time.Now().Add(50 * time.Hour),
		Seats:      seatGrid([]string{"A", "B", "C", "D", "E"}, 10),
	})
	if err != nil {
		return fmt.Errorf("failed to seed screening: %w", err)
	}
	fmt.Printf("  Screening slot %s (%d seats)\n", screening.ID(), screening.Capacity())

	showtime, err := s.engine.CreateSlot(ctx, reservations.NewSlotInput{
		ParentID:   uuid.New(),
		ParentType: reservations.ParentEvent,
		StartsAt:   time.Now().Add(7 * 24 * time.Hour),
		EndsAt:     time.Now().Add(7*24*time.Hour + 3*time.Hour),
		Capacity:   10,
	})
	if err != nil {
		return fmt.Errorf("failed to seed showtime: %w", err)
	}
	fmt.Printf("  Event slot %s (capacity %d)\n", showtime.ID(), showtime.Capacity())

	demo := []reservations.ReserveRequest{
		{UserID: users["alice"], SlotID: screening.ID(), Quantity: 2, Seats: []string{"C5", "C6"}},
		{UserID: users["bob"], SlotID: screening.ID(), Quantity: 1},
		{UserID: users["alice"], SlotID: showtime.ID(), Quantity: 6},
	}
	for _, req := range demo {
		res, err := s.engine.Reserve(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to seed booking: %w", err)
		}
		fmt.Printf("  Booking %s: %s x%d\n", res.Booking.ID, res.Status, res.Booking.Quantity)
	}

	if s.db.Redis != nil {
		if err := s.db.Redis.FlushDB(ctx).Err(); err != nil {
			log.Printf("Warning: Failed to clear Redis cache: %v", err)
		}
	}

	fmt.Println("\n  Access tokens (24h):")
	for name, id := range users {
		role := middleware.RoleUser
		if name == "organizer" {
			role = middleware.RoleOrganizer
		}
		token, err := middleware.IssueAccessToken(s.cfg.JWT.Secret, id, role, 24*time.Hour)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Printf("  %-10s %s\n", name, token)
	}
	return nil
}

// seatGrid labels seats row by row: A1..A10, B1..B10 and so on.
func seatGrid(rows []string, perRow int) []string {
	labels := make([]string, 0, len(rows)*perRow)
	for _, row := range rows {
		for n := 1; n <= perRow; n++ {
			labels = append(labels, fmt.Sprintf("%s%d", row, n))
		}
	}
	return labels
}
