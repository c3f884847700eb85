// Package mock provides test doubles for the stage interfaces.
//
// Each double takes an optional function field for custom behavior and
// counts its calls. Counters are safe for concurrent use.
package mock
