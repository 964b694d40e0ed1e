package shop

import "time"

// Cart holds the items of one checkout.
type Cart struct {
	Items []int
	owner string
}

func NewCart(owner string) *Cart {
	return &Cart{owner: owner}
}

// Expired reports whether the cart is older than the session limit.
func (c *Cart) Expired(created time.Time) bool {
	return time.Since(created) > 30*time.Minute // session limit
}
