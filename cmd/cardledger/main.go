package main

import "github.com/jmcleod/cardledger/cmd/cardledger/cmd"

func main() {
	cmd.Execute()
}
