package main

import "github.com/fulmenhq/rpsuite/cmd"

func main() {
	cmd.Execute()
}
