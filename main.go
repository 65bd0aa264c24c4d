package main

import (
	"github.com/sw33tLie/docdiff/cmd"
)

func main() {
	cmd.Execute()
}
