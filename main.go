package main

import (
	"github.com/foomo/objectregistry/cmd"
)

func main() {
	cmd.Execute()
}
