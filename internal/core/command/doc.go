// Package command maps RESP commands to keyspace operations.
//
// The command table is static: each verb has a Descriptor holding its
// arity, flags, key positions and a Handler. Dispatcher.Execute validates
// the arity before a handler runs, so handlers can index their arguments
// directly. Handlers touch the keyspace only through keyspace.DB.View and
// keyspace.DB.Update, which makes each command atomic with respect to the
// keys it names.
//
// Connection-scoped verbs (AUTH, QUIT, CLIENT, INFO, SAVE...) are not in
// this table; the server handles them before dispatch.
package command
