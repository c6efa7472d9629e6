package main

import (
	"fmt"
	"os"

	"amigolms/internal/config"
	"amigolms/internal/web"
)

func main() {
	cfg := config.GetConfig()
	if err := cfg.Load(); err != nil {
		fmt.Printf("错误: 加载配置失败: %v\n", err)
		os.Exit(1)
	}

	server := web.NewServer()
	if err := server.Start(11452); err != nil {
		fmt.Printf("错误: 启动服务器失败: %v\n", err)
		os.Exit(1)
	}
}
