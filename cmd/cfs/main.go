// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/cfs/cmd/cfs/cmd"
)

func main() {
	cmd.Execute()
}
