package main

import "pluginforge.io/cli/internal/interfaces/cli"

func main() {
	cli.Execute()
}
