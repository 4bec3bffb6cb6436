package main

import "github.com/kirillkom/policy-radar/internal/cli"

func main() {
	cli.Execute()
}
