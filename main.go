package main

import "github.com/ValentinKolb/kvfs/cmd"

func main() {
	cmd.Execute()
}
