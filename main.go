package main

import "github.com/tensornet/gate/cmd"

func main() {
	cmd.Execute()
}
