package main

import (
	"github.com/maxgio92/xsamp/pkg/cmd"
)

func main() {
	cmd.Execute()
}
