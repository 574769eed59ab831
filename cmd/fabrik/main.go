package main

import "github.com/tuist/fabrik/cmd/fabrik/cmd"

func main() {
	cmd.Execute()
}
