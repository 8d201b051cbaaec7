package main

import "wsp-sniper/cmd"

func main() {
	cmd.Execute()
}
