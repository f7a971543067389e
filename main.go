package main

import "github.com/tanq16/reload-entangle/cmd"

func main() {
	cmd.Execute()
}
