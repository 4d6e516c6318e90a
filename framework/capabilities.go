package framework

import "strings"

// Capabilities is the list of optional features that the test service says it supports.
type Capabilities []string

func (c Capabilities) Has(desired string) bool {
	for _, capability := range c {
		if capability == desired {
			return true
		}
	}
	return false
}

func (c Capabilities) HasAll(desired ...string) bool {
	for _, d := range desired {
		if !c.Has(d) {
			return false
		}
	}
	return true
}

func (c Capabilities) String() string {
	return strings.Join(c, ", ")
}
