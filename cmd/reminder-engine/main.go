package main

import "github.com/nioasoft/reminder-engine/internal/cli"

func main() {
	cli.Execute()
}
