package main

import "kge/internal/cli"

func main() {
	cli.Execute()
}
