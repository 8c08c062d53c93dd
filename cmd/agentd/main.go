// runabout-agentd 是宿主进程的模板：它不声明任何拦截点，控制面下发的指令都会失败。
// 宿主应在自己的 main 中调用 agentd.Run，并通过 Declarer 登记拦截点。
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"runabout/pkg/agentd"
	"runabout/pkg/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("RUNABOUT_CONFIG"), "配置文件路径")
	flag.Parse()
	if *configPath == "" {
		*configPath = "configs/runabout.yaml"
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agentd.Run(ctx, cfg); err != nil {
		log.Fatalf("runabout-agentd 异常退出: %v", err)
	}
	log.Println("runabout-agentd 已关闭")
}
