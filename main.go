package main

import (
	"os"

	"github.com/firefly-engineering/netbsd-imager/cmd"
	"github.com/firefly-engineering/netbsd-imager/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
