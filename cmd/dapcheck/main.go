package main

import (
	"os"

	"github.com/OpenTraceLab/dapcheck/cmd/dapcheck/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
