package main

import "github.com/forPelevin/storyreel/internal/cli"

func main() {
	cli.Main()
}
