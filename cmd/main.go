package main

import (
	"fmt"
	"os"

	"github.com/yungbote/neurobridge-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := ":" + a.Cfg.Port
	fmt.Printf("server listening on %s\n", addr)
	if err := a.Run(addr); err != nil {
		a.Log.Warn("server failed", "error", err)
	}
}
