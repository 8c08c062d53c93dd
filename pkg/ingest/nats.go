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
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultNATSSubject subject 前缀，完整 subject 为 <prefix>.<project>
const DefaultNATSSubject = "runabout.scenarios"

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// NATSSink 发布到 NATS；消息头带 Nats-Msg-Id，JetStream 流可据此去重
type NATSSink struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// NewNATSSink 复用已有连接，Close 不会关闭它
func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// DialNATS 建立连接并创建 sink
func DialNATS(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("runabout-ingest"))
	if err != nil {
		return nil, err
	}
	s := NewNATSSink(conn, prefix)
	s.owned = true
	return s, nil
}

// Name 实现 Sink
func (s *NATSSink) Name() string { return "nats" }

// Subject 项目对应的 subject
func (s *NATSSink) Subject(project string) string {
	return s.prefix + "." + subjectReplacer.Replace(project)
}

// Deliver 实现 Sink；Flush 确认服务端已收到
func (s *NATSSink) Deliver(ctx context.Context, d Delivery) error {
	msg := nats.NewMsg(s.Subject(d.Project))
	msg.Data = d.Payload
	msg.Header.Set(nats.MsgIdHdr, d.ID)
	if err := s.conn.PublishMsg(msg); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	return s.conn.FlushWithContext(ctx)
}

// Close 仅关闭自己建立的连接
func (s *NATSSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.conn.Drain()
}
