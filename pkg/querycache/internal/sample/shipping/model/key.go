// Package model holds the shipping query key used to check that same-named key types of different
// packages stay distinct.
package model

type Key struct {
	Statement string
	ID        int
}
