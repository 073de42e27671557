package main

import (
	"github.com/st4rkjatt/videoChatSimple/internal/cli"
	"github.com/st4rkjatt/videoChatSimple/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cli.Execute()
}
