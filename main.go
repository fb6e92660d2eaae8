package main

import (
	"os"

	"github.com/soocke/pixel-scroll-go/cli"
)

func main() {
	if err := cli.Execute(NewLogger); err != nil {
		os.Exit(1)
	}
}
