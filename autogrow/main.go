package main

import (
	"os"

	"github.com/mjasion/balena-home/autogrow/cli"
)

func main() {
	os.Exit(cli.Execute())
}
