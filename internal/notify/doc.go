// Package notify turns a batch of newly observed dump files into a single
// notification and hands it to a transport.
//
// The Dispatcher owns message composition, the attachment budget, and the
// send timeout. Transport failures are classified into a closed set of kinds
// at this boundary (see Error and Classify) so callers never depend on a
// transport's own error types. Concrete transports live in the smtp and ntfy
// subpackages.
package notify
