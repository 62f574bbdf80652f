package main

import "github.com/devicelab-dev/shopper-runner/pkg/cli"

func main() {
	cli.Execute()
}
