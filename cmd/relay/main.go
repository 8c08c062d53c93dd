package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"runabout/internal/app/worker"
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

	application, err := worker.NewApp(context.Background(), cfg)
	if err != nil {
		log.Fatalf("创建 relay 失败: %v", err)
	}
	if err := application.Start(); err != nil {
		log.Fatalf("启动 relay 失败: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		log.Printf("关闭失败: %v", err)
	}
	log.Println("relay 已关闭")
}
