package greet

import "strings"

// Greeter builds greetings.
type Greeter struct {
	Prefix string
}

// Greet returns the greeting for name.
func (g *Greeter) Greet(name string) string {
	return g.Prefix + strings.ToUpper(name) + "!"
}
