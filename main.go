package main

import (
	_ "time/tzdata"

	"github.com/Tiliavir/boring-time-tracker/cmd"
)

func main() {
	cmd.Execute()
}
