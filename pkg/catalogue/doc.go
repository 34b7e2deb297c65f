// Package catalogue holds the in-memory set of containers and items and the
// assignment relation between them. It has no placement logic of its own.
package catalogue
