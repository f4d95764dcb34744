package main

import (
	_ "time/tzdata"

	"fuelstation-cloud/internal/cli"
)

func main() {
	cli.Execute()
}
