package main

import "scrabble-bot/internal/cli"

func main() {
	cli.Execute()
}
