package datom

import "errors"

// WithConnection creates a connection, passes it to fn and closes it on every
// exit path, including a panic in fn.
func WithConnection(fn func(*Connection) error) (err error) {
	conn, err := NewConnection()
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()
	return fn(conn)
}

// WithFact parses edn, passes the fact to fn and closes it on every exit path.
func WithFact(edn string, fn func(*Fact) error) (err error) {
	fact, err := ParseFact(edn)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, fact.Close())
	}()
	return fn(fact)
}
