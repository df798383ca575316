package main

import "github.com/will-rowe/decoct/cmd"

func main() {
	cmd.Execute()
}
