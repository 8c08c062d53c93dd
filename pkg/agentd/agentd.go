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

// Package agentd 以守护方式运行 Agent：装配、启动、阻塞到 ctx 结束后优雅关闭。
//
// 拦截点只能由宿主代码声明，Agent 本身无法凭空生成。宿主在自己的 main 中调用 Run，
// 通过 Declarer 把拦截点登记到表上；cmd/agentd 是不声明任何拦截点的模板。
package agentd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"runabout/internal/app"
	"runabout/internal/app/api"
	"runabout/pkg/config"
	"runabout/pkg/intercept"
)

// ShutdownTimeout 收到退出信号后留给排空投递队列的时间
const ShutdownTimeout = 30 * time.Second

// Declarer 向表中声明宿主的拦截点，在 Agent 安装前调用
type Declarer func(table *intercept.Table)

// Run 装配并启动 Agent，阻塞直到 ctx 结束，然后在 ShutdownTimeout 内关闭
func Run(ctx context.Context, cfg *config.Config, declarers ...Declarer) error {
	table := intercept.NewTable()
	for _, declare := range declarers {
		if declare != nil {
			declare(table)
		}
	}

	bootstrap, err := app.NewBootstrap(ctx, cfg, table)
	if err != nil {
		return err
	}
	if len(table.Points()) == 0 {
		bootstrap.Logger.Warn("未声明拦截点，控制面指令都将因找不到拦截点而失败")
	}
	if err := bootstrap.Start(ctx); err != nil {
		return err
	}

	var application *api.App
	if cfg.Admin.Enable {
		application, err = api.NewApp(bootstrap)
		if err != nil {
			shutdown(bootstrap.Shutdown)
			return err
		}
		go func() {
			if err := application.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				bootstrap.Logger.Error("管理 API 异常退出", "error", err)
			}
		}()
	} else if err := bootstrap.InitTracing(); err != nil {
		bootstrap.Logger.Warn("初始化 tracing 失败", "error", err)
	}

	<-ctx.Done()

	if application != nil {
		return shutdown(application.Shutdown)
	}
	return shutdown(bootstrap.Shutdown)
}

func shutdown(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return fn(ctx)
}
