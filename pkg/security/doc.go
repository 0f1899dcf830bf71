// Package security manages the mTLS certificates that secure the
// worker RPC channel: file-backed load/save/rotation
// checks for a node's certificate, private key and CA. Certificate
// issuance itself is out of scope; this package only handles the
// client-side material once issued.
package security
