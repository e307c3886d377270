// Package transfer implements the one-chunk-in-flight discipline for binary
// payloads carried over a link channel.
//
// The sender splits a payload into chunks of at most protocol.ChunkSize bytes
// and may only send chunk n+1 after the binary ack for chunk n arrived. An
// Upload enforces that for the sending side: Start sends the first chunk and
// every OnAck sends the next one, until the whole payload was acknowledged and
// the completion callback fires. A Download tracks the receiving side.
package transfer
