package main

import "cdpproxy/cmd"

func main() {
	cmd.Execute()
}
