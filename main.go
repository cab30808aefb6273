package main

import "answerd/cmd"

func main() {
	cmd.Execute()
}
