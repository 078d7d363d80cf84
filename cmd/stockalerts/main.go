package main

import (
	"github.com/Yahiasherif002/stock-alerts-project/internal/cli"
)

func main() {
	cli.Execute()
}
