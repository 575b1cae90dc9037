package main

import (
	"os"

	"github.com/Li-Victor/Twittter/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
