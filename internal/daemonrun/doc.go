// Package daemonrun wires configuration, logging, the content store, the
// pipeline and the submission manager into a running daemon process.
package daemonrun
