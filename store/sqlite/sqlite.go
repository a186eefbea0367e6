/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements shipment.TxStore (shipments, milestone events, invoices, price
  lines, revenue entries) and shipment.Contacts (users, customers) on one
  database. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

LEDGER ENFORCEMENT:
  Revenue entries are insert-only. The single UPDATE the schema allows is
  the recognition period rewrite when a milestone date itself is corrected;
  amounts are never updated and rows are never deleted. The entry id is
  AUTOINCREMENT, so "latest entry" queries order by id - insertion order is
  the tie-breaker, not the timestamp.

KEY TABLES:
  shipments:        One row per order; milestone + coarse status together
  milestone_events: One row per (order, milestone); corrections rewrite the
                    row in place, UNIQUE(order_number, milestone)
  revenue_entries:  Insert-only ledger, id = insertion order
  invoices:         Collaborator state; reject/cancel soft-cancels
  price_lines:      Selling price components copied from the accepted bid
  users, customers: Read-mostly contact directory for notifications

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole transaction, which is what serializes two concurrent submissions
  for the same order. Transaction-scoped reads go through unlocked helpers
  so they don't deadlock against the held lock.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/shipments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - shipment/store.go: Interface definitions
  - revenue/ledger.go: Ledger entry contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/revenue"
	"github.com/warp/shipment-engine/shipment"
)

// Store implements shipment.TxStore and shipment.Contacts using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Shipments (one row per fulfilled order)
	CREATE TABLE IF NOT EXISTS shipments (
		order_number TEXT PRIMARY KEY,
		quote_ref TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		route TEXT NOT NULL,
		status TEXT NOT NULL,
		milestone TEXT NOT NULL,
		created_by TEXT NOT NULL,
		updated_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_shipments_customer
		ON shipments(customer_id);
	CREATE INDEX IF NOT EXISTS idx_shipments_status
		ON shipments(status);

	-- Milestone events (one per order+milestone; corrections rewrite in place)
	CREATE TABLE IF NOT EXISTS milestone_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL,
		milestone TEXT NOT NULL,
		details_json TEXT NOT NULL,
		created_by TEXT NOT NULL,
		updated_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(order_number, milestone)
	);

	CREATE INDEX IF NOT EXISTS idx_events_order
		ON milestone_events(order_number);

	-- Revenue entries (insert-only ledger; id is insertion order)
	CREATE TABLE IF NOT EXISTS revenue_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL,
		quote_ref TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		milestone TEXT NOT NULL,
		route TEXT NOT NULL,
		kind TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		initial_amount TEXT NOT NULL,
		final_amount TEXT NOT NULL,
		adjustment_amount TEXT NOT NULL,
		progression_percent INTEGER NOT NULL,
		progress INTEGER NOT NULL,
		progression_amount TEXT NOT NULL,
		settled_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		actor TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: latest-entry lookups must order by id, never by created_at.
	CREATE INDEX IF NOT EXISTS idx_revenue_order_id
		ON revenue_entries(order_number, id DESC);
	CREATE INDEX IF NOT EXISTS idx_revenue_period
		ON revenue_entries(year, month);

	-- Invoices (collaborator state; reject/cancel soft-cancels)
	CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL,
		state TEXT NOT NULL,
		amount TEXT NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		cancelled_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_order
		ON invoices(order_number);

	-- Price lines (selling price components from the accepted bid)
	CREATE TABLE IF NOT EXISTS price_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL,
		component TEXT NOT NULL,
		uom TEXT NOT NULL,
		price TEXT NOT NULL,
		created_by TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_lines_order
		ON price_lines(order_number);

	-- Users (milestone submitters; reminder recipients)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		phone_verified INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Customers (milestone notification recipients)
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		company_name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SHIPMENTS
// =============================================================================

// GetShipment returns the shipment, or nil if absent or soft-deleted.
func (s *Store) GetShipment(ctx context.Context, orderID string) (*shipment.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getShipment(ctx, s.db, orderID)
}

func getShipment(ctx context.Context, db dbtx, orderID string) (*shipment.Shipment, error) {
	var (
		sh                   shipment.Shipment
		route, status, ms    string
		createdAt, updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT order_number, quote_ref, customer_id, route, status, milestone,
		       created_by, created_at, updated_at, deleted
		FROM shipments
		WHERE order_number = ? AND deleted = 0`,
		orderID,
	).Scan(&sh.OrderID, &sh.QuoteRef, &sh.CustomerID, &route, &status, &ms,
		&sh.CreatedBy, &createdAt, &updatedAt, &sh.Deleted)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shipment: %w", err)
	}

	sh.Route = otif.Route(route)
	sh.Status = otif.Status(status)
	sh.Milestone = otif.Milestone(ms)
	sh.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sh.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sh, nil
}

// InsertShipment persists a newly created shipment.
func (s *Store) InsertShipment(ctx context.Context, sh *shipment.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertShipment(ctx, s.db, sh)
}

func insertShipment(ctx context.Context, db dbtx, sh *shipment.Shipment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO shipments
		(order_number, quote_ref, customer_id, route, status, milestone,
		 created_by, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.OrderID, sh.QuoteRef, sh.CustomerID, string(sh.Route),
		string(sh.Status), string(sh.Milestone), sh.CreatedBy,
		sh.CreatedAt.UTC().Format(time.RFC3339),
		sh.UpdatedAt.UTC().Format(time.RFC3339),
		boolToInt(sh.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to insert shipment: %w", err)
	}
	return nil
}

// UpdateShipmentProgress moves the shipment's milestone and coarse status
// together.
func (s *Store) UpdateShipmentProgress(ctx context.Context, orderID string, m otif.Milestone, st otif.Status, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateShipmentProgress(ctx, s.db, orderID, m, st, updatedBy)
}

func updateShipmentProgress(ctx context.Context, db dbtx, orderID string, m otif.Milestone, st otif.Status, updatedBy string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE shipments
		SET milestone = ?, status = ?, updated_by = ?, updated_at = ?
		WHERE order_number = ? AND deleted = 0`,
		string(m), string(st), updatedBy,
		time.Now().UTC().Format(time.RFC3339), orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update shipment progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &shipment.NotFoundError{OrderID: orderID, What: "shipment"}
	}
	return nil
}

// ListShipments returns all non-deleted shipments, newest first.
func (s *Store) ListShipments(ctx context.Context) ([]shipment.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT order_number, quote_ref, customer_id, route, status, milestone,
		       created_by, created_at, updated_at, deleted
		FROM shipments
		WHERE deleted = 0
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []shipment.Shipment
	for rows.Next() {
		var (
			sh                   shipment.Shipment
			route, status, ms    string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&sh.OrderID, &sh.QuoteRef, &sh.CustomerID, &route, &status, &ms,
			&sh.CreatedBy, &createdAt, &updatedAt, &sh.Deleted); err != nil {
			return nil, err
		}
		sh.Route = otif.Route(route)
		sh.Status = otif.Status(status)
		sh.Milestone = otif.Milestone(ms)
		sh.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sh.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		shipments = append(shipments, sh)
	}
	return shipments, rows.Err()
}

// =============================================================================
// MILESTONE EVENTS
// =============================================================================

// GetEvent returns the recorded event for (orderID, m), or nil.
func (s *Store) GetEvent(ctx context.Context, orderID string, m otif.Milestone) (*shipment.MilestoneEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEvent(ctx, s.db, orderID, m)
}

func getEvent(ctx context.Context, db dbtx, orderID string, m otif.Milestone) (*shipment.MilestoneEvent, error) {
	var (
		e                    shipment.MilestoneEvent
		ms, details          string
		updatedBy            sql.NullString
		createdAt, updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, order_number, milestone, details_json, created_by, updated_by, created_at, updated_at
		FROM milestone_events
		WHERE order_number = ? AND milestone = ?`,
		orderID, string(m),
	).Scan(&e.ID, &e.OrderID, &ms, &details, &e.CreatedBy, &updatedBy, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load milestone event: %w", err)
	}

	e.Milestone = otif.Milestone(ms)
	e.UpdatedBy = updatedBy.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	e.Details, err = otif.DecodeDetails(e.Milestone, []byte(details))
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpsertEvent inserts the event or, if (orderID, milestone) already exists,
// replaces its details and update metadata.
func (s *Store) UpsertEvent(ctx context.Context, e *shipment.MilestoneEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertEvent(ctx, s.db, e)
}

func upsertEvent(ctx context.Context, db dbtx, e *shipment.MilestoneEvent) error {
	details, err := otif.EncodeDetails(e.Details)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO milestone_events
		(order_number, milestone, details_json, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_number, milestone) DO UPDATE SET
			details_json = excluded.details_json,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		e.OrderID, string(e.Milestone), string(details),
		e.CreatedBy, nullString(e.UpdatedBy),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert milestone event: %w", err)
	}
	if e.ID == 0 {
		if id, err := res.LastInsertId(); err == nil {
			e.ID = id
		}
	}
	return nil
}

// ListEvents returns the order's events in insertion order.
func (s *Store) ListEvents(ctx context.Context, orderID string) ([]shipment.MilestoneEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_number, milestone, details_json, created_by, updated_by, created_at, updated_at
		FROM milestone_events
		WHERE order_number = ?
		ORDER BY id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestone events: %w", err)
	}
	defer rows.Close()

	var events []shipment.MilestoneEvent
	for rows.Next() {
		var (
			e                    shipment.MilestoneEvent
			ms, details          string
			updatedBy            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &ms, &details, &e.CreatedBy, &updatedBy, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		e.Milestone = otif.Milestone(ms)
		e.UpdatedBy = updatedBy.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		e.Details, err = otif.DecodeDetails(e.Milestone, []byte(details))
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// REVENUE ENTRIES (revenue.Store interface)
// =============================================================================

// AppendEntry inserts a ledger entry and assigns its insertion id.
func (s *Store) AppendEntry(ctx context.Context, e *revenue.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, db dbtx, e *revenue.Entry) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO revenue_entries
		(order_number, quote_ref, customer_id, milestone, route, kind, year, month,
		 initial_amount, final_amount, adjustment_amount,
		 progression_percent, progress, progression_amount, settled_amount, remaining_amount,
		 actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrderID, e.QuoteRef, e.CustomerID, string(e.Milestone), string(e.Route),
		string(e.Kind), e.Period.Year, int(e.Period.Month),
		e.Initial.String(), e.Final.String(), e.Adjustment.String(),
		e.ProgressionPercent, e.Progress,
		e.ProgressionAmount.String(), e.Settled.String(), e.Remaining.String(),
		e.Actor, e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append revenue entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read revenue entry id: %w", err)
	}
	e.ID = id
	return nil
}

const entryColumns = `id, order_number, quote_ref, customer_id, milestone, route, kind, year, month,
	initial_amount, final_amount, adjustment_amount,
	progression_percent, progress, progression_amount, settled_amount, remaining_amount,
	actor, created_at`

// LatestEntry returns the entry with the highest insertion id for the order,
// or nil if the order has none.
func (s *Store) LatestEntry(ctx context.Context, orderID string) (*revenue.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestEntry(ctx, s.db, orderID)
}

func latestEntry(ctx context.Context, db dbtx, orderID string) (*revenue.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM revenue_entries
		WHERE order_number = ?
		ORDER BY id DESC
		LIMIT 1`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest revenue entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns all entries for the order in insertion order.
func (s *Store) ListEntries(ctx context.Context, orderID string) ([]revenue.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntries(ctx, s.db, orderID)
}

func listEntries(ctx context.Context, db dbtx, orderID string) ([]revenue.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM revenue_entries
		WHERE order_number = ?
		ORDER BY id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue entries: %w", err)
	}
	defer rows.Close()

	var entries []revenue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (revenue.Entry, error) {
	var (
		e                          revenue.Entry
		ms, route, kind            string
		year, month                int
		initial, final, adjustment string
		progAmount, settled, rem   string
		createdAt                  string
	)
	err := rows.Scan(
		&e.ID, &e.OrderID, &e.QuoteRef, &e.CustomerID, &ms, &route, &kind, &year, &month,
		&initial, &final, &adjustment,
		&e.ProgressionPercent, &e.Progress, &progAmount, &settled, &rem,
		&e.Actor, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan revenue entry: %w", err)
	}

	e.Milestone = otif.Milestone(ms)
	e.Route = otif.Route(route)
	e.Kind = revenue.Kind(kind)
	e.Period = revenue.Period{Year: year, Month: time.Month(month)}
	e.Initial = mustDecimal(initial)
	e.Final = mustDecimal(final)
	e.Adjustment = mustDecimal(adjustment)
	e.ProgressionAmount = mustDecimal(progAmount)
	e.Settled = mustDecimal(settled)
	e.Remaining = mustDecimal(rem)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return e, nil
}

// UpdateEntryPeriods rewrites year/month on the order's entries for one
// milestone, plus its progression entry. The only permitted UPDATE on the
// ledger table.
func (s *Store) UpdateEntryPeriods(ctx context.Context, orderID string, m otif.Milestone, p revenue.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateEntryPeriods(ctx, s.db, orderID, m, p)
}

func updateEntryPeriods(ctx context.Context, db dbtx, orderID string, m otif.Milestone, p revenue.Period) error {
	_, err := db.ExecContext(ctx, `
		UPDATE revenue_entries
		SET year = ?, month = ?
		WHERE order_number = ? AND (milestone = ? OR kind = ?)`,
		p.Year, int(p.Month), orderID, string(m), string(revenue.KindProgression),
	)
	if err != nil {
		return fmt.Errorf("failed to update revenue entry periods: %w", err)
	}
	return nil
}

// =============================================================================
// INVOICES
// =============================================================================

// InsertInvoice persists a new invoice for the order.
func (s *Store) InsertInvoice(ctx context.Context, inv *shipment.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertInvoice(ctx, s.db, inv)
}

func insertInvoice(ctx context.Context, db dbtx, inv *shipment.Invoice) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO invoices (order_number, state, amount, created_at)
		VALUES (?, ?, ?, ?)`,
		inv.OrderID, string(inv.State), inv.Amount.String(),
		inv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	inv.ID, _ = res.LastInsertId()
	return nil
}

// GetOpenInvoice returns the order's non-cancelled invoice, or nil.
func (s *Store) GetOpenInvoice(ctx context.Context, orderID string) (*shipment.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOpenInvoice(ctx, s.db, orderID)
}

func getOpenInvoice(ctx context.Context, db dbtx, orderID string) (*shipment.Invoice, error) {
	var (
		inv               shipment.Invoice
		state, amount     string
		createdAt         string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, order_number, state, amount, created_at
		FROM invoices
		WHERE order_number = ? AND cancelled = 0
		ORDER BY id DESC
		LIMIT 1`,
		orderID,
	).Scan(&inv.ID, &inv.OrderID, &state, &amount, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	inv.State = otif.InvoiceState(state)
	inv.Amount = mustDecimal(amount)
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &inv, nil
}

// SoftCancelInvoice marks the order's open invoice cancelled; no-op if none
// exists.
func (s *Store) SoftCancelInvoice(ctx context.Context, orderID string, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return softCancelInvoice(ctx, s.db, orderID, actor)
}

func softCancelInvoice(ctx context.Context, db dbtx, orderID string, actor string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE invoices
		SET cancelled = 1, cancelled_by = ?
		WHERE order_number = ? AND cancelled = 0`,
		actor, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel invoice: %w", err)
	}
	return nil
}

// UpdateInvoiceState moves the invoice to a new state (issuance, settlement).
func (s *Store) UpdateInvoiceState(ctx context.Context, orderID string, state otif.InvoiceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateInvoiceState(ctx, s.db, orderID, state)
}

func updateInvoiceState(ctx context.Context, db dbtx, orderID string, state otif.InvoiceState) error {
	_, err := db.ExecContext(ctx, `
		UPDATE invoices
		SET state = ?
		WHERE order_number = ? AND cancelled = 0`,
		string(state), orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice state: %w", err)
	}
	return nil
}

// =============================================================================
// PRICE LINES
// =============================================================================

// InsertPriceLines persists selling-price lines for a new shipment.
func (s *Store) InsertPriceLines(ctx context.Context, lines []shipment.PriceLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPriceLines(ctx, s.db, lines)
}

func insertPriceLines(ctx context.Context, db dbtx, lines []shipment.PriceLine) error {
	for i := range lines {
		res, err := db.ExecContext(ctx, `
			INSERT INTO price_lines (order_number, component, uom, price, created_by)
			VALUES (?, ?, ?, ?, ?)`,
			lines[i].OrderID, lines[i].Component, lines[i].UOM,
			lines[i].Price.String(), lines[i].CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert price line: %w", err)
		}
		lines[i].ID, _ = res.LastInsertId()
	}
	return nil
}

// ListPriceLines returns the order's selling-price lines.
func (s *Store) ListPriceLines(ctx context.Context, orderID string) ([]shipment.PriceLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_number, component, uom, price, created_by
		FROM price_lines
		WHERE order_number = ?
		ORDER BY id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list price lines: %w", err)
	}
	defer rows.Close()

	var lines []shipment.PriceLine
	for rows.Next() {
		var l shipment.PriceLine
		var price string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Component, &l.UOM, &price, &l.CreatedBy); err != nil {
			return nil, err
		}
		l.Price = mustDecimal(price)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// =============================================================================
// CONTACT DIRECTORY (shipment.Contacts interface)
// =============================================================================

// User is a stored user record.
type User struct {
	ID            string
	Name          string
	Phone         string
	PhoneVerified bool
}

// SaveUser inserts or updates a user.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, phone, phone_verified, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			phone_verified = excluded.phone_verified`,
		u.ID, u.Name, nullString(u.Phone), boolToInt(u.PhoneVerified),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// UserPhone returns the phone of a verified user, empty if unknown or
// unverified.
func (s *Store) UserPhone(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var phone sql.NullString
	var verified bool
	err := s.db.QueryRowContext(ctx,
		"SELECT phone, phone_verified FROM users WHERE id = ?",
		userID,
	).Scan(&phone, &verified)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if !verified {
		return "", nil
	}
	return phone.String, nil
}

// Customer is a stored customer record.
type Customer struct {
	ID          string
	CompanyName string
	Phone       string
	Email       string
}

// SaveCustomer inserts or updates a customer.
func (s *Store) SaveCustomer(ctx context.Context, c Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, company_name, phone, email, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_name = excluded.company_name,
			phone = excluded.phone,
			email = excluded.email`,
		c.ID, c.CompanyName, nullString(c.Phone), nullString(c.Email),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// CustomerContact returns the customer's company and contact points.
// Unknown customers resolve to an empty contact, not an error.
func (s *Store) CustomerContact(ctx context.Context, customerID string) (shipment.CustomerContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c shipment.CustomerContact
	var phone, email sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT company_name, phone, email FROM customers WHERE id = ?",
		customerID,
	).Scan(&c.CompanyName, &phone, &email)

	if err == sql.ErrNoRows {
		return shipment.CustomerContact{}, nil
	}
	if err != nil {
		return shipment.CustomerContact{}, fmt.Errorf("failed to load customer: %w", err)
	}

	c.Phone = phone.String
	c.Email = email.String
	return c, nil
}

// =============================================================================
// TRANSACTIONAL STORE (shipment.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store's
// write lock is held for the duration, serializing concurrent submissions.
func (s *Store) WithTx(ctx context.Context, fn func(store shipment.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the unlocked helpers against the open
// transaction. It must not touch the parent's mutex: WithTx already holds it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetShipment(ctx context.Context, orderID string) (*shipment.Shipment, error) {
	return getShipment(ctx, ts.tx, orderID)
}

func (ts *txStore) InsertShipment(ctx context.Context, sh *shipment.Shipment) error {
	return insertShipment(ctx, ts.tx, sh)
}

func (ts *txStore) UpdateShipmentProgress(ctx context.Context, orderID string, m otif.Milestone, st otif.Status, updatedBy string) error {
	return updateShipmentProgress(ctx, ts.tx, orderID, m, st, updatedBy)
}

func (ts *txStore) GetEvent(ctx context.Context, orderID string, m otif.Milestone) (*shipment.MilestoneEvent, error) {
	return getEvent(ctx, ts.tx, orderID, m)
}

func (ts *txStore) UpsertEvent(ctx context.Context, e *shipment.MilestoneEvent) error {
	return upsertEvent(ctx, ts.tx, e)
}

func (ts *txStore) ListEvents(ctx context.Context, orderID string) ([]shipment.MilestoneEvent, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT id, order_number, milestone, details_json, created_by, updated_by, created_at, updated_at
		FROM milestone_events
		WHERE order_number = ?
		ORDER BY id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestone events: %w", err)
	}
	defer rows.Close()

	var events []shipment.MilestoneEvent
	for rows.Next() {
		var (
			e                    shipment.MilestoneEvent
			ms, details          string
			updatedBy            sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.OrderID, &ms, &details, &e.CreatedBy, &updatedBy, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		e.Milestone = otif.Milestone(ms)
		e.UpdatedBy = updatedBy.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		e.Details, err = otif.DecodeDetails(e.Milestone, []byte(details))
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (ts *txStore) GetOpenInvoice(ctx context.Context, orderID string) (*shipment.Invoice, error) {
	return getOpenInvoice(ctx, ts.tx, orderID)
}

func (ts *txStore) SoftCancelInvoice(ctx context.Context, orderID string, actor string) error {
	return softCancelInvoice(ctx, ts.tx, orderID, actor)
}

func (ts *txStore) InsertInvoice(ctx context.Context, inv *shipment.Invoice) error {
	return insertInvoice(ctx, ts.tx, inv)
}

func (ts *txStore) UpdateInvoiceState(ctx context.Context, orderID string, state otif.InvoiceState) error {
	return updateInvoiceState(ctx, ts.tx, orderID, state)
}

func (ts *txStore) InsertPriceLines(ctx context.Context, lines []shipment.PriceLine) error {
	return insertPriceLines(ctx, ts.tx, lines)
}

func (ts *txStore) ListPriceLines(ctx context.Context, orderID string) ([]shipment.PriceLine, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT id, order_number, component, uom, price, created_by
		FROM price_lines
		WHERE order_number = ?
		ORDER BY id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list price lines: %w", err)
	}
	defer rows.Close()

	var lines []shipment.PriceLine
	for rows.Next() {
		var l shipment.PriceLine
		var price string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.Component, &l.UOM, &price, &l.CreatedBy); err != nil {
			return nil, err
		}
		l.Price = mustDecimal(price)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (ts *txStore) AppendEntry(ctx context.Context, e *revenue.Entry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) LatestEntry(ctx context.Context, orderID string) (*revenue.Entry, error) {
	return latestEntry(ctx, ts.tx, orderID)
}

func (ts *txStore) ListEntries(ctx context.Context, orderID string) ([]revenue.Entry, error) {
	return listEntries(ctx, ts.tx, orderID)
}

func (ts *txStore) UpdateEntryPeriods(ctx context.Context, orderID string, m otif.Milestone, p revenue.Period) error {
	return updateEntryPeriods(ctx, ts.tx, orderID, m, p)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"revenue_entries", "milestone_events", "invoices", "price_lines", "shipments", "users", "customers"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsConstraintError reports whether err is a SQLite uniqueness violation,
// which callers map to their own duplicate errors.
func IsConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
