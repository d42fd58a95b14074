package main

import (
	"fmt"
	"os"

	"github.com/ahmedkamals/colorize"
)

var (
	colorized = colorize.NewColorable(os.Stdout)
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorized.Red(err.Error()))
		os.Exit(1)
	}
}
