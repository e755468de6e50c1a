package main

import "Soundy/cmd"

func main() {
	cmd.Execute()
}
