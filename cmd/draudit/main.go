package main

import "github.com/tradelab/draudit/internal/cli"

func main() {
	cli.Execute()
}
