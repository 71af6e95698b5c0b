package main

import (
	"os"

	nestlogcmder "github.com/papercomputeco/nestlog/cmd/nestlog"
)

func main() {
	cmd := nestlogcmder.NewNestlogCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
