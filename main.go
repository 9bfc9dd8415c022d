package main

import "github.com/audiolibrelab/playcapture/cmd"

func main() {
	cmd.Execute()
}
