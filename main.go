package main

import (
	"clipfm/cmd"
)

func main() {
	cmd.Execute()
}
