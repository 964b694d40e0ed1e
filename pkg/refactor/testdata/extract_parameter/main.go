package main

import (
	"fmt"

	"example.com/greet/greet"
)

func main() {
	g := greet.Greeter{Prefix: "Hello, "}
	fmt.Println(g.Greet("ada"))
	fmt.Println(g.Greet("grace" /* friend */))
}
