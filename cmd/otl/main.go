package main

import "github.com/OpenTraceLab/OpenTraceLock/cmd/otl/cmd"

func main() {
	cmd.Execute()
}
