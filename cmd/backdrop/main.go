package main

import "github.com/bryanchriswhite/backdrop/cmd/backdrop/commands"

func main() {
	commands.Execute()
}
