package main

import (
	"github.com/pipeflow-run/pipeflow/cmd/pipeflow/internal/command"
)

func main() {
	command.Execute()
}
