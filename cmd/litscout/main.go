package main

import (
	"litscout/cmd/cmd"
	"litscout/internal/logger"
)

func main() {
	logger.Init()
	cmd.Execute()
}
