// Package datom binds Go programs to the natively compiled datom library
// without cgo.
//
// The native library is located and loaded once per process by the
// bootstrap (see EnsureLoaded). Resources that live inside the library,
// such as connections and parsed facts, are exposed as wrappers that own
// exactly one opaque native handle and must be released with Close:
//
//	conn, err := datom.NewConnection()
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	t, err := conn.LatestT()
//
// The garbage collector never frees native memory. WithConnection and
// WithFact provide scoped acquisition for callers that prefer not to manage
// Close themselves.
package datom
