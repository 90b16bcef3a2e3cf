package main

import "copilotos/cmd"

func main() {
	cmd.Execute()
}
