package main

import "github.com/rankriot/scanner/cmd"

func main() {
	cmd.Execute()
}
