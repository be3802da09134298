// Package domain defines the error taxonomy of tidekv.
//
// Every failure a client can observe is a *DomainError whose Kind decides
// the connection layer's reaction:
//
//   - KindProtocol, KindInternal: reply (best effort) and close the connection
//   - KindWrongType, KindArity, KindUnknownCommand, KindFormat: error reply,
//     no side effects
//   - KindNoAuth, KindRateLimited: error reply, command skipped
//
// DomainError.Error() is the exact RESP error line, so handlers can return
// these values directly and the codec encodes them unchanged.
package domain
