package main

import (
	"os"

	"github.com/RichardoC/chatsync/cmd/chatsync/cmds"
)

func main() {
	os.Exit(cmds.Execute())
}
