package main

import "github.com/ValentinKolb/txlock/cmd"

func main() {
	cmd.Execute()
}
