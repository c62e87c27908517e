package main

import "github.com/dannyavrs/encapure/cmd/encapure/internal/cli"

func main() {
	cli.Execute()
}
