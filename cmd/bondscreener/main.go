package main

import (
	_ "time/tzdata"

	"moex-bond-screener/internal/cli"
)

func main() {
	cli.Execute()
}
