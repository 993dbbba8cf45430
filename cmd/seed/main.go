package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"storefront/config"
	"storefront/internal/adapter/storage"
)

type seedProduct struct {
	category    string
	name        string
	description string
	sku         string
	price       string
	stock       int
	featured    bool
}

var categories = map[string]string{
	"Laptops":     "Laptops for work, gaming, and everyday use",
	"Desktops":    "Desktop computers and workstations",
	"Printers":    "Printers, scanners, and all-in-one devices",
	"Accessories": "Monitors, keyboards, and more",
}

var products = []seedProduct{
	{"Laptops", `Pavilion 15.6" Laptop`, "Intel Core i5, 8GB RAM, 256GB SSD.", "PAV-15-001", "699.99", 25, true},
	{"Laptops", `Envy x360 13.3" 2-in-1 Laptop`, "Touchscreen 2-in-1 with AMD Ryzen 5.", "ENVY-X360-001", "899.99", 15, true},
	{"Laptops", `Omen 16.1" Gaming Laptop`, "RTX graphics and Intel Core i7.", "OMEN-16-001", "1299.99", 10, false},
	{"Desktops", "Pavilion Desktop Tower", "Intel Core i5, 12GB RAM, 512GB SSD.", "PAV-DT-001", "649.99", 20, false},
	{"Desktops", "All-in-One 24\" Desktop", "Slim all-in-one with FHD display.", "AIO-24-001", "799.99", 12, true},
	{"Printers", "LaserJet Pro MFP", "Print, scan and copy at laser speed.", "LJ-MFP-001", "329.99", 30, false},
	{"Printers", "Smart Ink Tank 7305", "High-volume ink tank all-in-one.", "INK-7305-001", "249.99", 18, false},
	{"Accessories", `27" QHD Monitor`, "Slim bezel 2560x1440 IPS panel.", "MON-27-001", "279.99", 40, true},
	{"Accessories", "Wireless Keyboard and Mouse", "Quiet full-size combo.", "KBM-001", "49.99", 100, false},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	if err := storage.RunMigrations(db, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	if err := seed(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	log.Info().Int("products", len(products)).Msg("sample data seeded")
}

// seed is idempotent: re-running it updates descriptions and prices but
// leaves stock counters alone so it is safe against a live database.
func seed(ctx context.Context, db *sql.DB) error {
	categoryIDs := make(map[string]int64)
	for name, description := range categories {
		_, err := db.ExecContext(ctx, `
			INSERT INTO categories (name, description) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE description = VALUES(description)`, name, description)
		if err != nil {
			return err
		}
		var id int64
		if err := db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
			return err
		}
		categoryIDs[name] = id
	}

	for _, p := range products {
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (category_id, name, description, sku, price, stock_quantity, is_featured, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1)
			ON DUPLICATE KEY UPDATE
				name = VALUES(name),
				description = VALUES(description),
				price = VALUES(price),
				is_featured = VALUES(is_featured)`,
			categoryIDs[p.category], p.name, p.description, p.sku, p.price, p.stock, p.featured)
		if err != nil {
			return err
		}
	}
	return nil
}
