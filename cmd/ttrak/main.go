package main

import "github.com/tkc/ttrak/internal/cli"

func main() {
	cli.Execute()
}
