package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// PostgresStore is an optional persistence adapter implementing Store on
// top of pgx. It exists for callers that want discovered loops to survive
// a process restart; the engine's discovery path never blocks on it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pooled connection and verifies it with a ping
// before handing the store out.
func ConnectPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("[Store] connected to PostgreSQL loop store")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes internal/store/schema.sql.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %v", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("[Store] trade loop schema initialized")
	return nil
}

// Insert stores a loop unless its id is already present; an existing row is
// left unchanged. It returns false if the loop already existed (caller
// treats that as the same "duplicate, skip" signal as MemoryStore).
func (s *PostgresStore) Insert(tenant models.TenantID, loop models.TradeLoop) bool {
	ctx := context.Background()
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trade_loops WHERE tenant_id = $1 AND loop_id = $2)`,
		string(tenant), loop.ID).Scan(&exists)
	if err != nil {
		log.Printf("[Store] existence check failed: %v", err)
		return false
	}
	if exists {
		return false
	}

	steps, err := json.Marshal(loop.Steps)
	if err != nil {
		log.Printf("[Store] failed to marshal loop steps: %v", err)
		return false
	}

	const insertSQL = `
		INSERT INTO trade_loops (tenant_id, loop_id, participants, quality, steps)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, loop_id) DO NOTHING;
	`
	_, err = s.pool.Exec(ctx, insertSQL, string(tenant), loop.ID, loop.Participants, loop.Quality, steps)
	if err != nil {
		log.Printf("[Store] failed to insert trade loop: %v", err)
		return false
	}
	return true
}

func (s *PostgresStore) Get(tenant models.TenantID, id string) (models.TradeLoop, bool) {
	ctx := context.Background()
	var loop models.TradeLoop
	var steps []byte
	err := s.pool.QueryRow(ctx,
		`SELECT loop_id, participants, quality, steps FROM trade_loops WHERE tenant_id = $1 AND loop_id = $2`,
		string(tenant), id,
	).Scan(&loop.ID, &loop.Participants, &loop.Quality, &steps)
	if err != nil {
		return models.TradeLoop{}, false
	}
	if err := json.Unmarshal(steps, &loop.Steps); err != nil {
		return models.TradeLoop{}, false
	}
	return loop, true
}

func (s *PostgresStore) Invalidate(tenant models.TenantID, id string, reason string) bool {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `DELETE FROM trade_loops WHERE tenant_id = $1 AND loop_id = $2`, string(tenant), id)
	if err != nil {
		log.Printf("[Store] failed to invalidate loop %s: %v", id, err)
		return false
	}
	return tag.RowsAffected() > 0
}

// InvalidateReferencing deletes every loop whose JSON steps blob mentions
// item. The id is passed to the jsonpath as a bound variable, never spliced
// into the path text, so ids containing quotes or path operators cannot
// alter the predicate.
func (s *PostgresStore) InvalidateReferencing(tenant models.TenantID, item models.ItemID, reason string) []string {
	ctx := context.Background()
	const selSQL = `
		SELECT loop_id FROM trade_loops
		WHERE tenant_id = $1
		  AND jsonb_path_exists(steps, '$[*].items[*] ? (@ == $item)', jsonb_build_object('item', $2::text));
	`
	rows, err := s.pool.Query(ctx, selSQL, string(tenant), string(item))
	if err != nil {
		log.Printf("[Store] failed to query loops referencing item %s: %v", item, err)
		return nil
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()

	for _, id := range ids {
		s.Invalidate(tenant, id, reason)
	}
	return ids
}

func (s *PostgresStore) LoopsForWallet(tenant models.TenantID, wallet models.WalletID) []models.TradeLoop {
	ctx := context.Background()
	const selSQL = `
		SELECT loop_id, participants, quality, steps FROM trade_loops
		WHERE tenant_id = $1
		  AND jsonb_path_exists(steps, '$[*]."from" ? (@ == $wallet)', jsonb_build_object('wallet', $2::text))
		ORDER BY quality DESC, loop_id ASC;
	`
	rows, err := s.pool.Query(ctx, selSQL, string(tenant), string(wallet))
	if err != nil {
		log.Printf("[Store] failed to query loops for wallet %s: %v", wallet, err)
		return nil
	}
	defer rows.Close()

	var out []models.TradeLoop
	for rows.Next() {
		var loop models.TradeLoop
		var steps []byte
		if err := rows.Scan(&loop.ID, &loop.Participants, &loop.Quality, &steps); err != nil {
			continue
		}
		if err := json.Unmarshal(steps, &loop.Steps); err != nil {
			continue
		}
		out = append(out, loop)
	}
	return out
}

func (s *PostgresStore) ActiveCount(tenant models.TenantID) int {
	ctx := context.Background()
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_loops WHERE tenant_id = $1`, string(tenant)).Scan(&count)
	if err != nil {
		log.Printf("[Store] failed to count active loops: %v", err)
		return 0
	}
	return count
}
