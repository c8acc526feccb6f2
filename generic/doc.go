// Package generic holds the attendance core shared by every domain package:
// date and time arithmetic on absent-aware values, effective-dated record
// selection and its store contract, the error taxonomy, accumulated user
// messages, and code sequences.
//
// Nothing here knows about workflows, requests or settings. Those live in
// workflow/, attendance/ and resolver/ and build on these primitives.
package generic
