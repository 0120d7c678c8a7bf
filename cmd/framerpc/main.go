package main

import "github.com/vietddude/framerpc/internal/cli"

func main() {
	cli.Execute()
}
