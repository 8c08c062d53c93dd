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
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runabout/pkg/scenario"
)

func TestRedisSink_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis sink tests")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	project := "it-" + uuid.NewString()
	sink := NewRedisSink(client, "", 2)
	defer sink.Close()
	defer client.Del(ctx, sink.Key(project))

	for _, evt := range []string{"a", "b", "c"} {
		d, err := NewDelivery(project, testScenario(evt))
		require.NoError(t, err)
		require.NoError(t, sink.Deliver(ctx, d))
	}
	items, err := client.LRange(ctx, sink.Key(project), 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, items, 2, "list is trimmed to maxLen")
	env, err := scenario.ParseEnvelope([]byte(items[0]))
	require.NoError(t, err)
	assert.Equal(t, "c", env.Scenario.EventID())
}

func TestPostgresSink_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set, skipping Postgres outbox tests")
	}
	ctx := context.Background()
	sink, err := NewPostgresSink(ctx, dsn, 0)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.EnsureSchema(ctx))
	_, _ = sink.pool.Exec(ctx, `DELETE FROM scenario_outbox`)

	project := "it-" + uuid.NewString()
	d, err := NewDelivery(project, testScenario("evt"))
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(ctx, d))
	require.NoError(t, sink.Deliver(ctx, d), "duplicate delivery id is ignored")

	n, err := sink.Pending(ctx, project)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entry, err := sink.Claim(ctx, "relay-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, d.ID, entry.ID)
	assert.Equal(t, project, entry.Project)
	env, err := scenario.ParseEnvelope(entry.Payload)
	require.NoError(t, err)
	assert.Equal(t, "evt", env.Scenario.EventID())

	none, err := sink.Claim(ctx, "relay-2")
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, sink.MarkFailed(ctx, entry.ID, "relay timeout", true))
	entry, err = sink.Claim(ctx, "relay-2")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NoError(t, sink.MarkDelivered(ctx, entry.ID))
	n, err = sink.Pending(ctx, project)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPostgresSink_ClaimLeaseExpiry(t *testing.T) {
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set, skipping Postgres outbox tests")
	}
	ctx := context.Background()
	sink, err := NewPostgresSink(ctx, dsn, time.Minute)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.EnsureSchema(ctx))
	_, _ = sink.pool.Exec(ctx, `DELETE FROM scenario_outbox`)

	d, err := NewDelivery("it-"+uuid.NewString(), testScenario("lease"))
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(ctx, d))

	entry, err := sink.Claim(ctx, "relay-crashed")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// 租约内其他 relay 认领不到
	none, err := sink.Claim(ctx, "relay-2")
	require.NoError(t, err)
	assert.Nil(t, none)

	// 模拟认领方崩溃：claimed_at 超过租约
	_, err = sink.pool.Exec(ctx,
		`UPDATE scenario_outbox SET claimed_at = now() - interval '2 minutes' WHERE id = $1`, d.ID)
	require.NoError(t, err)

	entry, err = sink.Claim(ctx, "relay-2")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, d.ID, entry.ID)

	var relayID string
	require.NoError(t, sink.pool.QueryRow(ctx,
		`SELECT relay_id FROM scenario_outbox WHERE id = $1`, d.ID).Scan(&relayID))
	assert.Equal(t, "relay-2", relayID)
	require.NoError(t, sink.MarkDelivered(ctx, entry.ID))
}

func TestNewPostgresSinkWithPool_DefaultLease(t *testing.T) {
	assert.Equal(t, DefaultClaimLease, NewPostgresSinkWithPool(nil, 0).ClaimLease())
	assert.Equal(t, time.Second, NewPostgresSinkWithPool(nil, time.Second).ClaimLease())
}

func TestNATSSink_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping NATS sink tests")
	}
	sink, err := DialNATS(url, "")
	require.NoError(t, err)
	defer sink.Close()

	project := "it.project"
	assert.Equal(t, "runabout.scenarios.it_project", sink.Subject(project))

	sub, err := sink.conn.SubscribeSync(sink.Subject(project))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	d, err := NewDelivery(project, testScenario("evt"))
	require.NoError(t, err)
	require.NoError(t, sink.Deliver(context.Background(), d))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, d.ID, msg.Header.Get(nats.MsgIdHdr))
	env, err := scenario.ParseEnvelope(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, project, env.ProjectName)
}
