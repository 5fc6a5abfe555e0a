package main

import (
	"github.com/zeidlos/gridcall/cmd"
	"github.com/zeidlos/gridcall/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
