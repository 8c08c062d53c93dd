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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultIngestURL Runabout 官方 ingest 地址
const DefaultIngestURL = "https://api.runabout.dev/ingest"

// Config 应用配置结构体
type Config struct {
	Project      string             `mapstructure:"project"`
	APIToken     string             `mapstructure:"api_token"`
	Ingest       IngestConfig       `mapstructure:"ingest"`
	ControlPlane ControlPlaneConfig `mapstructure:"control_plane"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Admin        AdminConfig        `mapstructure:"admin"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Log          LogConfig          `mapstructure:"log"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
}

// IngestConfig 场景投递配置
type IngestConfig struct {
	Type      string `mapstructure:"type"`       // http | redis | postgres | nats | memory | none
	URL       string `mapstructure:"url"`        // http: ingest 地址；nats: 服务器地址
	Addr      string `mapstructure:"addr"`       // redis 地址
	DB        int    `mapstructure:"db"`         // redis DB 编号
	Password  string `mapstructure:"password"`   // redis 密码，可选
	DSN       string `mapstructure:"dsn"`        // postgres 连接串，type=postgres 时必填
	Subject   string `mapstructure:"subject"`    // nats subject 或 redis key 前缀，空则使用各自默认
	QueueSize int    `mapstructure:"queue_size"` // 异步队列长度，<=0 使用默认 1024
	Workers   int    `mapstructure:"workers"`    // 投递 goroutine 数，<=0 使用默认 2
	RetryMax  int    `mapstructure:"retry_max"`  // 单条最大重试次数（不含首次），<0 使用默认 2
	Backoff   string `mapstructure:"backoff"`    // 重试间隔，如 "500ms"
	Timeout   string `mapstructure:"timeout"`    // 单次投递超时，如 "10s"
}

// ControlPlaneConfig 指令源配置
type ControlPlaneConfig struct {
	Type         string   `mapstructure:"type"`         // http | redis | static | none
	URL          string   `mapstructure:"url"`          // http 基地址
	Addr         string   `mapstructure:"addr"`         // redis 地址
	DB           int      `mapstructure:"db"`           // redis DB 编号
	Password     string   `mapstructure:"password"`     // redis 密码
	Timeout      string   `mapstructure:"timeout"`      // 请求超时
	Instructions []string `mapstructure:"instructions"` // static 指令，形如 example.com/pkg.Type#Method
}

// AgentConfig 插桩 Agent 配置
type AgentConfig struct {
	Enabled          *bool    `mapstructure:"enabled"`           // 为 false 时仅构建不 Install；未配置时默认 true
	PollInterval     string   `mapstructure:"poll_interval"`     // 指令轮询间隔，空则不轮询
	RateLimit        float64  `mapstructure:"rate_limit"`        // 每秒最多生成的场景数，<=0 不限流
	Burst            int      `mapstructure:"burst"`             // 限流突发，<=0 使用 1
	MaxNodes         int      `mapstructure:"max_nodes"`         // 单个对象编码访问的节点上限
	InternalPrefixes []string `mapstructure:"internal_prefixes"` // 额外视为库内部的包前缀
}

// AdminConfig 管理 API 配置
type AdminConfig struct {
	Enable bool   `mapstructure:"enable"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Token  string `mapstructure:"token"` // 非空时写操作需 Bearer token
}

// RelayConfig 发件箱转发配置；从 ingest.dsn 的 scenario_outbox 认领并投递到 target
type RelayConfig struct {
	ID           string       `mapstructure:"id"`            // 空则取 RELAY_ID 或 hostname
	PollInterval string       `mapstructure:"poll_interval"` // 无数据时的轮询间隔
	Concurrency  int          `mapstructure:"concurrency"`   // 同时转发的条数
	ClaimLease   string       `mapstructure:"claim_lease"`   // 认领租约，超时未确认的条目可被其他 relay 重新认领
	Target       IngestConfig `mapstructure:"target"`        // 下游，通常为 http 或 nats
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// AgentEnabled 未配置时默认 true
func (c *Config) AgentEnabled() bool {
	if c == nil || c.Agent.Enabled == nil {
		return true
	}
	return *c.Agent.Enabled
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project) == "" {
		return fmt.Errorf("project 不能为空")
	}
	switch c.Ingest.Type {
	case "", "none", "memory":
	case "http":
	case "redis":
		if c.Ingest.Addr == "" {
			return fmt.Errorf("ingest.addr 不能为空 (type=redis)")
		}
	case "postgres":
		if c.Ingest.DSN == "" {
			return fmt.Errorf("ingest.dsn 不能为空 (type=postgres)")
		}
	case "nats":
		if c.Ingest.URL == "" {
			return fmt.Errorf("ingest.url 不能为空 (type=nats)")
		}
	default:
		return fmt.Errorf("unsupported ingest type: %s", c.Ingest.Type)
	}
	switch c.ControlPlane.Type {
	case "", "none", "static":
	case "http":
		if c.ControlPlane.URL == "" {
			return fmt.Errorf("control_plane.url 不能为空 (type=http)")
		}
	case "redis":
		if c.ControlPlane.Addr == "" {
			return fmt.Errorf("control_plane.addr 不能为空 (type=redis)")
		}
	default:
		return fmt.Errorf("unsupported control_plane type: %s", c.ControlPlane.Type)
	}
	return nil
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("RUNABOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	// 替换环境变量
	replaceEnvVars(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ingest.type", "http")
	v.SetDefault("ingest.url", DefaultIngestURL)
	v.SetDefault("ingest.queue_size", 1024)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.retry_max", 2)
	v.SetDefault("ingest.backoff", "500ms")
	v.SetDefault("ingest.timeout", "10s")
	v.SetDefault("control_plane.type", "none")
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 7070)
	v.SetDefault("relay.poll_interval", "2s")
	v.SetDefault("relay.concurrency", 2)
	v.SetDefault("relay.claim_lease", "5m")
	v.SetDefault("relay.target.type", "http")
	v.SetDefault("relay.target.url", DefaultIngestURL)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// replaceEnvVars 替换配置中形如 ${VAR} 的敏感字段
func replaceEnvVars(config *Config) {
	config.APIToken = expandEnv(config.APIToken)
	config.Ingest.Password = expandEnv(config.Ingest.Password)
	config.Ingest.DSN = expandEnv(config.Ingest.DSN)
	config.ControlPlane.Password = expandEnv(config.ControlPlane.Password)
	config.Admin.Token = expandEnv(config.Admin.Token)
	config.Relay.Target.Password = expandEnv(config.Relay.Target.Password)
}

func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	envVar := strings.TrimPrefix(strings.TrimSuffix(s, "}"), "${")
	envVar = strings.TrimPrefix(envVar, "$")
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return s
}
