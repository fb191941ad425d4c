package main

import "github.com/tanq16/smartdl/cmd"

func main() {
	cmd.Execute()
}
