package shop

var sample = Cart{nil, "sample"}
