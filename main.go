package main

import "github.com/edgefw/buildmatrix/cmd"

func main() {
	cmd.Execute()
}
