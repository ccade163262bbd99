package main

import "certkeeper/cmd/client/cmd"

func main() {
	cmd.Execute()
}
