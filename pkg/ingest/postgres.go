// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var outboxSchema = []string{
	`CREATE TABLE IF NOT EXISTS scenario_outbox (
  id TEXT PRIMARY KEY,
  project TEXT NOT NULL,
  payload JSONB NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  relay_id TEXT,
  error TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  claimed_at TIMESTAMPTZ,
  delivered_at TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS scenario_outbox_pending_idx ON scenario_outbox (status, created_at)`,
}

// OutboxEntry 发件箱中的一条场景
type OutboxEntry struct {
	ID        string
	Project   string
	Payload   []byte
	CreatedAt time.Time
}

// DefaultClaimLease 认领租约时长；relay 崩溃后超过租约的 claimed 行重新可认领
const DefaultClaimLease = 5 * time.Minute

// PostgresSink 将场景写入 scenario_outbox，由独立的 relay 认领后转发
type PostgresSink struct {
	pool     *pgxpool.Pool
	leaseDur time.Duration
}

// NewPostgresSink 连接并校验数据库；leaseDuration 为认领租约时长（≤0 则 DefaultClaimLease）
func NewPostgresSink(ctx context.Context, dsn string, leaseDuration time.Duration) (*PostgresSink, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresSinkWithPool(pool, leaseDuration), nil
}

// NewPostgresSinkWithPool 复用已有连接池
func NewPostgresSinkWithPool(pool *pgxpool.Pool, leaseDuration time.Duration) *PostgresSink {
	if leaseDuration <= 0 {
		leaseDuration = DefaultClaimLease
	}
	return &PostgresSink{pool: pool, leaseDur: leaseDuration}
}

// ClaimLease 认领租约时长
func (s *PostgresSink) ClaimLease() time.Duration { return s.leaseDur }

// EnsureSchema 创建发件箱表（幂等）
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	for _, stmt := range outboxSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Name 实现 Sink
func (s *PostgresSink) Name() string { return "postgres" }

// Deliver 实现 Sink；同一 delivery id 重复写入被忽略
func (s *PostgresSink) Deliver(ctx context.Context, d Delivery) error {
	if len(d.Payload) == 0 {
		return errors.New("payload 不能为空")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scenario_outbox (id, project, payload, status) VALUES ($1, $2, $3, 'pending') ON CONFLICT (id) DO NOTHING`,
		d.ID, d.Project, d.Payload,
	)
	return err
}

// Claim 原子认领最早的一条 pending，或租约已过期的 claimed；无数据时返回 nil, nil。
// 过期重认领意味着同一条可能被转发两次，下游按 delivery id 去重。
func (s *PostgresSink) Claim(ctx context.Context, relayID string) (*OutboxEntry, error) {
	now := time.Now()
	var e OutboxEntry
	err := s.pool.QueryRow(ctx,
		`WITH sel AS (
  SELECT id FROM scenario_outbox
  WHERE status = 'pending' OR (status = 'claimed' AND claimed_at < $2)
  ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
)
UPDATE scenario_outbox SET status = 'claimed', relay_id = $1, claimed_at = $3
FROM sel WHERE scenario_outbox.id = sel.id
RETURNING scenario_outbox.id, scenario_outbox.project, scenario_outbox.payload, scenario_outbox.created_at`,
		relayID, now.Add(-s.leaseDur), now,
	).Scan(&e.ID, &e.Project, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// MarkDelivered 标记已转发
func (s *PostgresSink) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE scenario_outbox SET status = 'delivered', error = NULL, delivered_at = now() WHERE id = $1`,
		id,
	)
	return err
}

// MarkFailed 标记转发失败；requeue 为 true 时放回 pending
func (s *PostgresSink) MarkFailed(ctx context.Context, id string, errMsg string, requeue bool) error {
	status := "failed"
	if requeue {
		status = "pending"
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE scenario_outbox SET status = $1, error = $2, relay_id = NULL WHERE id = $3`,
		status, errMsg, id,
	)
	return err
}

// Pending 待转发条数
func (s *PostgresSink) Pending(ctx context.Context, project string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM scenario_outbox WHERE status = 'pending' AND project = $1`,
		project,
	).Scan(&n)
	return n, err
}

// Close 关闭连接池
func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
