package main

import "github.com/moyu-x/image-fingerprint/cmd"

func main() {
	cmd.Execute()
}
