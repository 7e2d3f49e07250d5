package main

import (
	"LazyDJ/cmd"
)

func main() {
	cmd.Execute()
}
