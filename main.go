package main

import "github.com/esimov/pixel-particles/cmd"

func main() {
	cmd.Execute()
}
