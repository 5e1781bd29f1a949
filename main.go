package main

import (
	"github.com/BioHazard786/warphost/cmd"
	"github.com/BioHazard786/warphost/internal/logging"
)

func main() {
	logging.Init()
	cmd.Execute()
}
