package main

import "github.com/wafguard-systems/wafguard/internal/cli"

func main() {
	cli.Execute()
}
