package main

import (
	"fmt"

	"github.com/lutris-engineering/datom-go/datom"
	"github.com/lutris-engineering/datom-go/internal/closeutil"
)

func roundTrip(inputs []string) (err error) {
	if len(inputs) == 0 {
		return fmt.Errorf("roundtrip needs at least one EDN fact")
	}

	facts, err := datom.ParseFacts(inputs...)
	if err != nil {
		return err
	}
	closers := make([]closeutil.Closer, len(facts))
	for i, f := range facts {
		closers[i] = f
	}
	defer func() {
		if closeErr := closeutil.CloseAll(closers...); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, f := range facts {
		edn, err := f.EDN()
		if err != nil {
			return err
		}
		fmt.Println(edn)
	}
	return nil
}
