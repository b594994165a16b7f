// Package audit maintains the append-only trail of every approval lifecycle
// event and answers aggregate statistics queries. Durability backends live in
// the memory and fs subpackages behind the Store contract.
package audit
