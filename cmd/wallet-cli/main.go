package main

import "dot-wallet/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}
