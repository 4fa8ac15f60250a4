package main

import "github.com/rudransh-shrivastava/peershare/internal/cmd"

func main() {
	cmd.Execute()
}
