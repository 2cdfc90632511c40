package main

import (
	"github.com/butter-bot-machines/childproc/pkg/cmd"
	_ "github.com/butter-bot-machines/childproc/pkg/process/os"
)

func main() {
	cmd.Execute()
}
