package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"storefront/internal/core/domain"
)

// MySQLAdapter implements the product, cart and order repositories on a
// single MySQL database. Transactions live here; services orchestrate and
// retry but never see *sql.Tx.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// InnoDB error numbers that mean the transaction lost a lock race and may be
// replayed as-is.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// wrapDB maps driver-level failures onto the error taxonomy: connection loss
// becomes ErrStorageUnavailable, deadlocks and lock-wait timeouts become
// ErrConcurrencyConflict so the service's bounded retry absorbs them.
func wrapDB(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStorageUnavailable, err)
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrConcurrencyConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- ProductRepository ---

const productColumns = `id, category_id, name, description, sku, price, stock_quantity, is_featured, is_active, version, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.SKU, &p.Price,
		&p.StockQuantity, &p.IsFeatured, &p.IsActive, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "product", ID: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, wrapDB("query product", err)
	}
	return p, nil
}

func (m *MySQLAdapter) ListActiveProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return m.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE is_active = 1 ORDER BY id LIMIT ?`, limit)
}

func (m *MySQLAdapter) ListFeaturedProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return m.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE is_active = 1 AND is_featured = 1 ORDER BY id LIMIT ?`, limit)
}

func (m *MySQLAdapter) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	return m.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE is_active = 1 AND name LIKE ? ORDER BY id LIMIT ?`, "%"+query+"%", limit)
}

func (m *MySQLAdapter) queryProducts(ctx context.Context, q string, args ...any) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDB("query products", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, wrapDB("scan product", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (m *MySQLAdapter) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET price = ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`, price, id)
	if err != nil {
		return wrapDB("update price", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.NotFoundError{Entity: "product", ID: fmt.Sprint(id)}
	}
	return nil
}

// --- CartRepository ---

func (m *MySQLAdapter) GetOrCreateCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := m.getCartByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE updated_at = updated_at`, userID)
	if err != nil {
		return nil, wrapDB("create cart", err)
	}
	return m.getCartByUser(ctx, userID)
}

func (m *MySQLAdapter) getCartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	var c domain.Cart
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = ?`, userID,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "cart", ID: userID}
	}
	if err != nil {
		return nil, wrapDB("query cart", err)
	}
	return &c, nil
}

func (m *MySQLAdapter) GetCartItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, cart_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE cart_id = ? ORDER BY id`, cartID)
	if err != nil {
		return nil, wrapDB("query cart items", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, wrapDB("scan cart item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) GetCartItem(ctx context.Context, itemID int64) (*domain.CartItem, error) {
	var it domain.CartItem
	err := m.db.QueryRowContext(ctx, `
		SELECT id, cart_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE id = ?`, itemID,
	).Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "cart item", ID: fmt.Sprint(itemID)}
	}
	if err != nil {
		return nil, wrapDB("query cart item", err)
	}
	return &it, nil
}

func (m *MySQLAdapter) SaveCartItem(ctx context.Context, item *domain.CartItem) error {
	if item.ID == 0 {
		result, err := m.db.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
			VALUES (?, ?, ?, NOW(), NOW())
			ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), updated_at = NOW()`,
			item.CartID, item.ProductID, item.Quantity)
		if err != nil {
			return wrapDB("insert cart item", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			item.ID = id
		}
		return nil
	}

	_, err := m.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = ?, updated_at = NOW() WHERE id = ?`,
		item.Quantity, item.ID)
	if err != nil {
		return wrapDB("update cart item", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCartItem(ctx context.Context, itemID int64) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, itemID)
	if err != nil {
		return wrapDB("delete cart item", err)
	}
	return nil
}

func (m *MySQLAdapter) ClearCart(ctx context.Context, cartID int64) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = ?`, cartID)
	if err != nil {
		return wrapDB("clear cart", err)
	}
	return nil
}

// --- OrderRepository ---

// CreateOrder commits the order header, its lines and the per-product stock
// decrements as one transaction. Each decrement is a conditional UPDATE
// guarded on available stock, so the check-and-decrement is a single atomic
// unit per row; a failed guard aborts the whole transaction with no partial
// effects. Unit prices are read from the product rows locked by the
// decrement, which makes them the price at transaction time by construction.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	// Lock product rows in one global order so two multi-line placements can
	// never acquire them in opposite order and deadlock each other.
	sort.Slice(order.Items, func(i, j int) bool {
		return order.Items[i].ProductID < order.Items[j].ProductID
	})

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB("begin tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, shipping_address, phone,
		                    payment_method, payment_status, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, NOW(), NOW())`,
		order.ID, order.UserID, order.Status, order.ShippingAddress, order.Phone,
		order.PaymentMethod, order.PaymentStatus)
	if err != nil {
		return wrapDB("insert order", err)
	}

	total := decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]

		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - ?, version = version + 1, updated_at = NOW()
			WHERE id = ? AND is_active = 1 AND stock_quantity >= ?`,
			item.Quantity, item.ProductID, item.Quantity)
		if err != nil {
			return wrapDB("decrement stock", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return m.explainRefusal(ctx, tx, item.ProductID, item.Quantity)
		}

		// The row is locked by the UPDATE above; this read is the committed
		// price of this very transaction.
		var price decimal.Decimal
		err = tx.QueryRowContext(ctx, `SELECT price FROM products WHERE id = ?`, item.ProductID).Scan(&price)
		if err != nil {
			return wrapDB("read price", err)
		}
		item.Price = price
		item.OrderID = order.ID
		total = total.Add(item.Subtotal())

		result, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES (?, ?, ?, ?)`,
			order.ID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return wrapDB("insert order item", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			item.ID = id
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE orders SET total_amount = ? WHERE id = ?`, total, order.ID)
	if err != nil {
		return wrapDB("set order total", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDB("commit order", err)
	}
	order.TotalAmount = total
	return nil
}

// explainRefusal turns a failed conditional decrement into the precise typed
// error: missing product, deactivated product, or short stock.
func (m *MySQLAdapter) explainRefusal(ctx context.Context, tx *sql.Tx, productID int64, requested int) error {
	var active bool
	var stock int
	err := tx.QueryRowContext(ctx, `
		SELECT is_active, stock_quantity FROM products WHERE id = ?`, productID,
	).Scan(&active, &stock)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: "product", ID: fmt.Sprint(productID)}
	}
	if err != nil {
		return wrapDB("explain refusal", err)
	}
	if !active {
		return &domain.ProductUnavailableError{ProductID: productID}
	}
	return &domain.InsufficientStockError{ProductID: productID, Requested: requested, Available: stock}
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, status, shipping_address, phone,
		       payment_method, payment_status, COALESCE(tracking_number, ''), created_at, updated_at
		FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.ShippingAddress, &o.Phone,
		&o.PaymentMethod, &o.PaymentStatus, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return nil, wrapDB("query order", err)
	}

	items, err := m.getOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (m *MySQLAdapter) getOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, wrapDB("query order items", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, wrapDB("scan order item", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	return m.queryOrders(ctx, `WHERE user_id = ?`, userID, limit)
}

func (m *MySQLAdapter) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return m.queryOrders(ctx, `WHERE status = ?`, string(status), limit)
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return m.queryOrders(ctx, ``, nil, limit)
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, where string, arg any, limit int) ([]domain.Order, error) {
	q := `SELECT id, user_id, total_amount, status, shipping_address, phone,
	             payment_method, payment_status, COALESCE(tracking_number, ''), created_at, updated_at
	      FROM orders ` + where + ` ORDER BY created_at DESC LIMIT ?`
	args := []any{limit}
	if arg != nil {
		args = []any{arg, limit}
	}
	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapDB("query orders", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.ShippingAddress, &o.Phone,
			&o.PaymentMethod, &o.PaymentStatus, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, wrapDB("scan order", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus is a compare-and-swap on the status column. Zero rows
// affected means the order moved (or vanished) underneath the caller.
func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW()
		WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return wrapDB("update order status", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := m.GetOrder(ctx, id); err != nil {
			return err
		}
		return domain.ErrConcurrencyConflict
	}
	return nil
}

// CancelOrder restores stock for every order line and flips the status to
// cancelled in one transaction. The status row is locked first so concurrent
// cancels and shipments serialize.
func (m *MySQLAdapter) CancelOrder(ctx context.Context, id string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDB("begin tx", err)
	}
	defer tx.Rollback()

	var status domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ? FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: "order", ID: id}
	}
	if err != nil {
		return wrapDB("lock order", err)
	}
	if status == domain.OrderStatusCancelled {
		// Idempotent: cancelling a cancelled order changes nothing.
		return nil
	}
	if !status.Cancellable() {
		return &domain.InvalidTransitionError{From: status, To: domain.OrderStatusCancelled}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM order_items WHERE order_id = ?`, id)
	if err != nil {
		return wrapDB("query order items", err)
	}
	type line struct {
		productID int64
		quantity  int
	}
	var lines []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.quantity); err != nil {
			rows.Close()
			return wrapDB("scan order item", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapDB("iterate order items", err)
	}

	for _, l := range lines {
		_, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + ?, version = version + 1, updated_at = NOW()
			WHERE id = ?`, l.quantity, l.productID)
		if err != nil {
			return wrapDB("restore stock", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ?`,
		domain.OrderStatusCancelled, id)
	if err != nil {
		return wrapDB("update order status", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDB("commit cancel", err)
	}
	return nil
}

// MarkShipped stores the tracking number and forces the status to shipped
// from any pre-shipment stage. Delivered and cancelled orders are refused.
func (m *MySQLAdapter) MarkShipped(ctx context.Context, id, trackingNumber string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, tracking_number = ?, updated_at = NOW()
		WHERE id = ? AND status NOT IN (?, ?)`,
		domain.OrderStatusShipped, trackingNumber, id,
		domain.OrderStatusDelivered, domain.OrderStatusCancelled)
	if err != nil {
		return wrapDB("mark shipped", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		order, err := m.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		return &domain.InvalidTransitionError{From: order.Status, To: domain.OrderStatusShipped}
	}
	return nil
}

func (m *MySQLAdapter) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = ?, updated_at = NOW() WHERE id = ?`, status, id)
	if err != nil {
		return wrapDB("update payment status", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.NotFoundError{Entity: "order", ID: id}
	}
	return nil
}

// Ping verifies connectivity; used by the health endpoint.
func (m *MySQLAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}
