package main

import "github.com/cronboard/cronboard/cmd"

func main() {
	cmd.Execute()
}
