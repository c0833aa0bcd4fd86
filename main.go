package main

import "github.com/shelfcircle/shelfcircle/cmd"

func main() {
	cmd.Execute()
}
