package main

import "github.com/funvibe/numfn/pkg/cli"

func main() {
	cli.Main()
}
