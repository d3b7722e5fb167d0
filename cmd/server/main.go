package main

import "cashback/internal/cli"

func main() {
	cli.Execute()
}
