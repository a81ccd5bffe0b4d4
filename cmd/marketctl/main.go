package main

import "github.com/jrsteele09/go-market-client/cmd/marketctl/cmd"

func main() {
	cmd.Execute()
}
