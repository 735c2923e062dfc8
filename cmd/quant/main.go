package main

import (
	"os"

	"github.com/wonny/aegis-index/cmd/quant/commands"
)

// version is stamped at build time: -ldflags "-X main.version=v1.2.0"
var version = "dev"

// ⭐ 통합 CLI 진입점: go run ./cmd/quant [command]
func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
