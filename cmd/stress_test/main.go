package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"storefront/internal/adapter/storage"
	"storefront/internal/core/service"
)

// Contention check against a real database: many buyers race for the same
// product, and exactly stock-many orders may succeed.
const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/storefront?parseTime=true&multiStatements=true"
	productID     = int64(1)
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := storage.RunMigrations(db, "migrations"); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Reset the product under test.
	_, err = db.ExecContext(ctx, `
		INSERT INTO categories (id, name) VALUES (1, 'stress')
		ON DUPLICATE KEY UPDATE name = name`)
	if err != nil {
		log.Fatalf("seed category: %v", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO products (id, category_id, name, sku, price, stock_quantity, is_active)
		VALUES (?, 1, 'stress-item', 'STRESS-001', 10.00, ?, 1)
		ON DUPLICATE KEY UPDATE stock_quantity = ?, version = 0, is_active = 1`,
		productID, initialStock, initialStock)
	if err != nil {
		log.Fatalf("seed product: %v", err)
	}
	db.ExecContext(ctx, `DELETE oi FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE o.user_id LIKE 'stress-user-%'`)
	db.ExecContext(ctx, `DELETE FROM orders WHERE user_id LIKE 'stress-user-%'`)

	store := storage.NewMySQLAdapter(db)
	svc := service.NewOrderService(store, store, nil, zerolog.Nop(), service.OrderServiceConfig{})
	defer svc.Close()

	go func() {
		for range svc.StockSyncQueue() {
		}
	}()

	cartSvc := service.NewCartService(store, store, zerolog.Nop())

	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			userID := fmt.Sprintf("stress-user-%d", n)
			if err := cartSvc.AddItem(ctx, userID, productID, 1); err != nil {
				failCount.Add(1)
				return
			}
			cart, err := cartSvc.GetOrCreateCart(ctx, userID)
			if err != nil {
				failCount.Add(1)
				return
			}

			_, err = svc.PlaceOrder(ctx, service.PlaceOrderInput{
				UserID:          userID,
				CartID:          cart.ID,
				ShippingAddress: "1 Stress Lane",
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	var finalStock int
	db.QueryRowContext(ctx, `SELECT stock_quantity FROM products WHERE id = ?`, productID).Scan(&finalStock)
	fmt.Printf("Final Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}
}
