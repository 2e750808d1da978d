package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/shardvm/internal/pkg/crypto"
)

// PostgresStore is the pgx-backed implementation of Store. Every record
// is stored as a JSONB blob alongside whatever columns are needed for
// lookups and foreign keys, the same shape the rest of this codebase's
// metadata tables use; the filesystem tree is the one place this
// diverges, since its content is addressed by hash rather than owned by
// a single row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vms (
			id TEXT PRIMARY KEY,
			hostname TEXT NOT NULL,
			ip TEXT NOT NULL UNIQUE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS factions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS email_accounts (
			address TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emails (
			id TEXT PRIMARY KEY,
			to_address TEXT NOT NULL,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS emails_to_address_idx ON emails (to_address, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			player_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			address TEXT NOT NULL UNIQUE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (player_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_cards (
			id TEXT PRIMARY KEY,
			wallet_address TEXT NOT NULL REFERENCES wallets(address) ON DELETE CASCADE,
			card_number TEXT NOT NULL UNIQUE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS card_invoices (
			id TEXT PRIMARY KEY,
			destination_key TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS card_invoices_destination_idx ON card_invoices (destination_key)`,
		`CREATE TABLE IF NOT EXISTS fs_contents (
			hash TEXT PRIMARY KEY,
			content TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS fs_nodes (
			vm_id TEXT NOT NULL,
			path TEXT NOT NULL,
			kind TEXT NOT NULL,
			content_hash TEXT,
			mode INTEGER,
			owner TEXT,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (vm_id, path)
		)`,
		`CREATE INDEX IF NOT EXISTS fs_nodes_parent_idx ON fs_nodes (vm_id, path text_pattern_ops)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- VMs ---

func (s *PostgresStore) CreateVM(ctx context.Context, rec *VMRecord) error {
	if rec.ID == "" || rec.IP == "" {
		return fmt.Errorf("vm id and ip are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO vms (id, hostname, ip, data, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			ip = EXCLUDED.ip,
			data = EXCLUDED.data
	`, rec.ID, rec.Hostname, rec.IP, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create vm: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVM(ctx context.Context, id string) (*VMRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM vms WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("vm not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vm: %w", err)
	}
	var rec VMRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) ListVMs(ctx context.Context) ([]*VMRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM vms ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list vms: %w", err)
	}
	defer rows.Close()

	var out []*VMRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list vms scan: %w", err)
		}
		var rec VMRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteVM(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `DELETE FROM vms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vm: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("vm not found: %s", id)
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM fs_nodes WHERE vm_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vm filesystem: %w", err)
	}
	return nil
}

// --- Users / players / factions ---

func (s *PostgresStore) CreateUser(ctx context.Context, rec *UserRecord) error {
	if rec.ID == "" || rec.Username == "" {
		return fmt.Errorf("user id and username are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, username, data, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, rec.ID, rec.Username, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM users WHERE username = $1`, username).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	var rec UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) CreatePlayer(ctx context.Context, rec *PlayerRecord) error {
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("player id and user id are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO players (id, user_id, data, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, rec.ID, rec.UserID, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id string) (*PlayerRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM players WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("player not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	var rec PlayerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) CreateFaction(ctx context.Context, rec *FactionRecord) error {
	if rec.ID == "" || rec.Name == "" {
		return fmt.Errorf("faction id and name are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO factions (id, name, data, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, rec.ID, rec.Name, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create faction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFactions(ctx context.Context) ([]*FactionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM factions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list factions: %w", err)
	}
	defer rows.Close()

	var out []*FactionRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list factions scan: %w", err)
		}
		var rec FactionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// --- Mail ---

func (s *PostgresStore) CreateEmailAccount(ctx context.Context, rec *EmailAccountRecord) error {
	if rec.Address == "" || rec.PlayerID == "" {
		return fmt.Errorf("email address and player id are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO email_accounts (address, player_id, data, created_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (address) DO UPDATE SET data = EXCLUDED.data
	`, rec.Address, rec.PlayerID, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create email account: %w", err)
	}
	return nil
}

func (s *PostgresStore) SendEmail(ctx context.Context, rec *EmailRecord) error {
	if rec.ID == "" || rec.To == "" {
		return fmt.Errorf("email id and recipient are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO emails (id, to_address, read, data, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, rec.ID, rec.To, rec.Read, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEmails(ctx context.Context, address string, limit int) ([]*EmailRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM emails WHERE to_address = $1 ORDER BY created_at DESC LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()

	var out []*EmailRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("list emails scan: %w", err)
		}
		var rec EmailRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkEmailRead(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE emails SET read = TRUE,
			data = jsonb_set(data, '{Read}', 'true'::jsonb)
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark email read: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("email not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UnreadEmailCount(ctx context.Context, address string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM emails WHERE to_address = $1 AND read = FALSE
	`, address).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unread email count: %w", err)
	}
	return count, nil
}

// --- Wallets / cards ---

func (s *PostgresStore) CreateWallet(ctx context.Context, rec *WalletRecord) error {
	if rec.PlayerID == "" || rec.Kind == "" || rec.Address == "" {
		return fmt.Errorf("wallet player id, kind and address are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wallets (player_id, kind, address, data, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (player_id, kind) DO UPDATE SET data = EXCLUDED.data
	`, rec.PlayerID, rec.Kind, rec.Address, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, playerID, kind string) (*WalletRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM wallets WHERE player_id = $1 AND kind = $2
	`, playerID, kind).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("wallet not found: %s/%s", playerID, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	var rec WalletRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) CreateWalletCard(ctx context.Context, rec *WalletCardRecord) error {
	if rec.ID == "" || rec.WalletAddress == "" || rec.CardNumber == "" {
		return fmt.Errorf("wallet card id, wallet address and card number are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wallet_cards (id, wallet_address, card_number, data, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, rec.ID, rec.WalletAddress, rec.CardNumber, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create wallet card: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWalletCardByNumber(ctx context.Context, cardNumber string) (*WalletCardRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM wallet_cards WHERE card_number = $1
	`, cardNumber).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("wallet card not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet card: %w", err)
	}
	var rec WalletCardRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateCardInvoice and MarkInvoicePaid run inside a row lock so two
// concurrent webhook deliveries for the same invoice can't both apply
// the payment.

func (s *PostgresStore) CreateCardInvoice(ctx context.Context, rec *CardInvoiceRecord) error {
	if rec.ID == "" || rec.DestinationKey == "" {
		return fmt.Errorf("invoice id and destination key are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO card_invoices (id, destination_key, amount_cents, paid, data, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, rec.ID, rec.DestinationKey, rec.AmountCents, rec.Paid, data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create card invoice: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCardInvoice(ctx context.Context, id string) (*CardInvoiceRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM card_invoices WHERE id = $1`, id).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("invoice not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get card invoice: %w", err)
	}
	var rec CardInvoiceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) MarkInvoicePaid(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mark invoice paid: %w", err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	var paid bool
	err = tx.QueryRow(ctx, `
		SELECT data, paid FROM card_invoices WHERE id = $1 FOR UPDATE
	`, id).Scan(&data, &paid)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("invoice not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("mark invoice paid: %w", err)
	}
	if paid {
		return nil
	}

	var rec CardInvoiceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	now := time.Now()
	rec.Paid = true
	rec.PaidAt = &now

	updated, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE card_invoices SET paid = TRUE, data = $2 WHERE id = $1
	`, id, updated)
	if err != nil {
		return fmt.Errorf("mark invoice paid update: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) TotalCollected(ctx context.Context, destinationKey string) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM card_invoices
		WHERE destination_key = $1 AND paid = TRUE
	`, destinationKey).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total collected: %w", err)
	}
	return total, nil
}

// --- Filesystem ---
//
// fs_contents is a content-addressable blob store keyed by
// crypto.HashString of the content; fs_nodes maps a (vm, path) pair to
// either a directory marker or a content hash, plus the uid (as text)
// of the process that created it. Two files with identical contents on
// the same or different VMs share one blob row.
//
// Reads are world-readable (any uid may fs.read/fs.ls any path); uid is
// still accepted on Read/List for symmetry with the Store interface and
// in case a future ACL model needs it. Writes, removes, and directory
// creation are owner-checked: uid 0 (root) and the node's own owner may
// always mutate it; any other uid is refused with a permission error.
// A node with no recorded owner (created before this check existed, or
// never assigned one) is treated as unowned and mutable by anyone.

func ownerOf(ctx context.Context, q queryRower, vmID, path string) (owner string, exists bool, err error) {
	var o *string
	err = q.QueryRow(ctx, `SELECT owner FROM fs_nodes WHERE vm_id = $1 AND path = $2`, vmID, path).Scan(&o)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if o == nil {
		return "", true, nil
	}
	return *o, true, nil
}

// queryRower is the subset of *pgxpool.Pool/pgx.Tx ownerOf needs.
type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func checkOwnership(owner string, exists bool, uid int) error {
	if !exists || owner == "" {
		return nil
	}
	if uid == 0 || owner == strconv.Itoa(uid) {
		return nil
	}
	return fmt.Errorf("fs: permission denied (owned by uid %s)", owner)
}

func (s *PostgresStore) Read(vmID, path string, uid int) (string, bool, error) {
	ctx := context.Background()
	var kind string
	var hash *string
	err := s.pool.QueryRow(ctx, `
		SELECT kind, content_hash FROM fs_nodes WHERE vm_id = $1 AND path = $2
	`, vmID, path).Scan(&kind, &hash)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fs read: %w", err)
	}
	if kind != "file" || hash == nil {
		return "", false, nil
	}

	var content string
	err = s.pool.QueryRow(ctx, `SELECT content FROM fs_contents WHERE hash = $1`, *hash).Scan(&content)
	if err != nil {
		return "", false, fmt.Errorf("fs read blob: %w", err)
	}
	return content, true, nil
}

func (s *PostgresStore) Write(vmID, path, content string, mode *int, uid int) error {
	ctx := context.Background()
	hash := crypto.HashString(content)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("fs write begin: %w", err)
	}
	defer tx.Rollback(ctx)

	owner, exists, err := ownerOf(ctx, tx, vmID, path)
	if err != nil {
		return fmt.Errorf("fs write owner check: %w", err)
	}
	if err := checkOwnership(owner, exists, uid); err != nil {
		return err
	}
	if !exists {
		owner = strconv.Itoa(uid)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fs_contents (hash, content) VALUES ($1, $2)
		ON CONFLICT (hash) DO NOTHING
	`, hash, content)
	if err != nil {
		return fmt.Errorf("fs write blob: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fs_nodes (vm_id, path, kind, content_hash, mode, owner, updated_at)
		VALUES ($1, $2, 'file', $3, $4, $5, $6)
		ON CONFLICT (vm_id, path) DO UPDATE SET
			kind = 'file', content_hash = EXCLUDED.content_hash,
			mode = EXCLUDED.mode, owner = EXCLUDED.owner, updated_at = EXCLUDED.updated_at
	`, vmID, path, hash, mode, owner, time.Now())
	if err != nil {
		return fmt.Errorf("fs write node: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) List(vmID, path string, uid int) ([]FSEntry, error) {
	ctx := context.Background()
	prefix := path
	if prefix != "/" {
		prefix += "/"
	}
	rows, err := s.pool.Query(ctx, `
		SELECT path, kind, owner FROM fs_nodes
		WHERE vm_id = $1 AND path LIKE $2 || '%' AND path != $3
	`, vmID, prefix, path)
	if err != nil {
		return nil, fmt.Errorf("fs list: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]FSEntry)
	for rows.Next() {
		var nodePath, kind string
		var owner *string
		if err := rows.Scan(&nodePath, &kind, &owner); err != nil {
			return nil, fmt.Errorf("fs list scan: %w", err)
		}
		rest := nodePath[len(prefix):]
		name := rest
		entryKind := kind
		entryOwner := ""
		if owner != nil {
			entryOwner = *owner
		}
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				name = rest[:i]
				entryKind = "dir"
				entryOwner = ""
				break
			}
		}
		if name == "" {
			continue
		}
		seen[name] = FSEntry{Name: name, Type: entryKind, Owner: entryOwner}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]FSEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	return out, nil
}

func (s *PostgresStore) Remove(vmID, path string, uid int) error {
	ctx := context.Background()

	owner, exists, err := ownerOf(ctx, s.pool, vmID, path)
	if err != nil {
		return fmt.Errorf("fs remove owner check: %w", err)
	}
	if !exists {
		return fmt.Errorf("no such file or directory: %s", path)
	}
	if err := checkOwnership(owner, exists, uid); err != nil {
		return err
	}

	ct, err := s.pool.Exec(ctx, `
		DELETE FROM fs_nodes WHERE vm_id = $1 AND (path = $2 OR path LIKE $2 || '/%')
	`, vmID, path)
	if err != nil {
		return fmt.Errorf("fs remove: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("no such file or directory: %s", path)
	}
	return nil
}

func (s *PostgresStore) MkdirAll(vmID, path string, uid int) error {
	ctx := context.Background()

	owner, exists, err := ownerOf(ctx, s.pool, vmID, path)
	if err != nil {
		return fmt.Errorf("fs mkdir owner check: %w", err)
	}
	if err := checkOwnership(owner, exists, uid); err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fs_nodes (vm_id, path, kind, owner, updated_at)
		VALUES ($1, $2, 'dir', $3, $4)
		ON CONFLICT (vm_id, path) DO NOTHING
	`, vmID, path, strconv.Itoa(uid), time.Now())
	if err != nil {
		return fmt.Errorf("fs mkdir: %w", err)
	}
	return nil
}
