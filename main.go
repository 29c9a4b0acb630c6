package main

import "github.com/ValentinKolb/dLasso/cmd"

func main() {
	cmd.Execute()
}
