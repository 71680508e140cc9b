package datom

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestResourceReleaseOnce(t *testing.T) {
	var r resource
	r.init("widget", nativeHandle(42))

	var destroyed []nativeHandle
	destroy := func(h nativeHandle) { destroyed = append(destroyed, h) }

	if !r.release(destroy) {
		t.Fatal("expected first release to report true")
	}
	if r.release(destroy) {
		t.Fatal("expected second release to report false")
	}
	if len(destroyed) != 1 || destroyed[0] != 42 {
		t.Fatalf("expected a single destroy of handle 42, got %v", destroyed)
	}

	err := r.do(func(nativeHandle) error {
		t.Fatal("callback must not run on a released resource")
		return nil
	})
	if !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}

func TestResourceReportLeak(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	var leaked resource
	leaked.init("connection", nativeHandle(7))
	leaked.reportLeak()

	var closed resource
	closed.init("fact", nativeHandle(8))
	closed.release(func(nativeHandle) {})
	closed.reportLeak()

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one leak warning, got %d", len(entries))
	}
	if kind := entries[0].ContextMap()["kind"]; kind != "connection" {
		t.Fatalf("expected leak of a connection, got %v", kind)
	}
}
