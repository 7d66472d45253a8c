package main

import "github.com/GurakG/Enclave-PSSC/cmd"

func main() {
	cmd.Execute()
}
