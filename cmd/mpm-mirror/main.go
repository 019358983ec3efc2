package main

import "github.com/myprojectmanager/mpm-release/cmd/mpm-mirror/cmd"

func main() {
	cmd.Execute()
}
