package datom

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/lutris-engineering/datom-go/internal/closeutil"
)

// maxQuotedEDN limits how much of rejected input is echoed in errors.
const maxQuotedEDN = 64

// Fact is a parsed fact held in the native library's representation.
// It must be closed exactly once.
type Fact struct {
	res    resource
	native *boundary
}

// ParseFact parses the EDN form of a fact, for example
// [:db/add "ident" :person/name "Piper"].
func ParseFact(edn string) (*Fact, error) {
	if strings.TrimSpace(edn) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidEDN)
	}
	if strings.IndexByte(edn, 0) >= 0 {
		return nil, fmt.Errorf("%w: input contains a NUL byte", ErrInvalidEDN)
	}

	b, err := acquireBoundary()
	if err != nil {
		return nil, err
	}

	h := b.factFromEDN(edn)
	if h == invalidHandle {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEDN, quoteEDN(edn))
	}
	return newFact(b, h), nil
}

// ParseFacts parses every input. On failure the facts parsed so far are
// closed and none are returned.
func ParseFacts(edns ...string) ([]*Fact, error) {
	facts := make([]*Fact, 0, len(edns))
	for i, edn := range edns {
		f, err := ParseFact(edn)
		if err != nil {
			closers := make([]closeutil.Closer, len(facts))
			for j, parsed := range facts {
				closers[j] = parsed
			}
			return nil, errors.Join(fmt.Errorf("fact %d: %w", i, err), closeutil.CloseAll(closers...))
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// newFact takes ownership of a handle produced by a native call.
func newFact(b *boundary, h nativeHandle) *Fact {
	f := &Fact{native: b}
	f.res.init("fact", h)
	runtime.SetFinalizer(f, (*Fact).reportLeak)
	return f
}

// EDN serializes the fact back to its canonical EDN text.
func (f *Fact) EDN() (string, error) {
	if f == nil {
		return "", fmt.Errorf("fact: %w", ErrReleased)
	}
	var out string
	err := f.res.do(func(h nativeHandle) error {
		s, ok := f.native.factToEDN(h)
		if !ok {
			return fmt.Errorf("fact serialization failed")
		}
		out = s
		return nil
	})
	return out, err
}

// IsValid reports whether the fact has not been closed.
func (f *Fact) IsValid() bool {
	return f != nil && f.res.valid()
}

// Close destroys the native fact. Closing an already closed fact does
// nothing.
func (f *Fact) Close() error {
	if f == nil {
		return nil
	}
	if f.res.release(f.native.factDestroy) {
		runtime.SetFinalizer(f, nil)
	}
	return nil
}

func (f *Fact) reportLeak() {
	f.res.reportLeak()
}

func quoteEDN(edn string) string {
	if len(edn) <= maxQuotedEDN {
		return edn
	}
	return edn[:maxQuotedEDN] + "..."
}
