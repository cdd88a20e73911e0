package main

import "github.com/gaetancollaud/integrations-mqtt/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
