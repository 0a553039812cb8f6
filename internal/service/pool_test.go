package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"github.com/stretchr/testify/require"
)

// fakeAutomation records lifecycle calls
type fakeAutomation struct {
	opened  string
	saved   string
	quit    atomic.Bool
	failOn  string
	factory *fakeFactory
}

func (f *fakeAutomation) Open(path string) error {
	if f.failOn == "open" {
		return errors.New("open failed")
	}
	f.opened = path
	return nil
}

func (f *fakeAutomation) SaveAs(path, format string) error {
	if f.failOn == "save" {
		return errors.New("save failed")
	}
	f.saved = path
	return nil
}

func (f *fakeAutomation) Close() error { return nil }

func (f *fakeAutomation) Quit() error {
	f.quit.Store(true)
	return nil
}

type fakeFactory struct {
	spawned atomic.Int32
	last    *fakeAutomation
}

func (f *fakeFactory) new() (Automation, error) {
	f.spawned.Add(1)
	f.last = &fakeAutomation{factory: f}
	return f.last, nil
}

func TestAutomationPool_ReusesReleasedInstances(t *testing.T) {
	f := &fakeFactory{}
	p := NewAutomationPool(f.new, 2)

	h, err := p.Lease(context.Background())
	require.NoError(t, err)
	p.Release(h)

	h2, err := p.Lease(context.Background())
	require.NoError(t, err)
	require.Same(t, h, h2)
	require.Equal(t, int32(1), f.spawned.Load())
}

func TestAutomationPool_GrowsUpToMax(t *testing.T) {
	f := &fakeFactory{}
	p := NewAutomationPool(f.new, 2)

	h1, err := p.Lease(context.Background())
	require.NoError(t, err)
	h2, err := p.Lease(context.Background())
	require.NoError(t, err)
	require.NotSame(t, h1, h2)
	require.Equal(t, 2, p.Size())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Lease(ctx)
	require.True(t, apperr.IsKind(err, apperr.KindResourceExhausted))
}

func TestAutomationPool_BlockedLeaseWakesOnRelease(t *testing.T) {
	f := &fakeFactory{}
	p := NewAutomationPool(f.new, 1)

	h, err := p.Lease(context.Background())
	require.NoError(t, err)

	got := make(chan *Handle, 1)
	go func() {
		h2, err := p.Lease(context.Background())
		if err == nil {
			got <- h2
		}
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(h)

	select {
	case h2 := <-got:
		require.Same(t, h, h2)
	case <-time.After(time.Second):
		t.Fatal("blocked lease never woke up")
	}
}

func TestAutomationPool_RetireQuitsAndDrops(t *testing.T) {
	f := &fakeFactory{}
	p := NewAutomationPool(f.new, 2)

	h, err := p.Lease(context.Background())
	require.NoError(t, err)
	inst := f.last

	p.Retire(h)
	require.True(t, inst.quit.Load())
	require.Equal(t, 0, p.Size())

	// The next lease spawns fresh instead of reusing the retired one
	_, err = p.Lease(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), f.spawned.Load())
}

func TestOfficeConverter_RetiresInstanceOnFailure(t *testing.T) {
	f := &fakeFactory{}
	p := NewAutomationPool(func() (Automation, error) {
		f.spawned.Add(1)
		f.last = &fakeAutomation{failOn: "save"}
		return f.last, nil
	}, 2)
	conv := NewOfficeConverter("office-document", []string{"docx"}, p, func() bool { return true })

	err := conv.Convert(context.Background(), "in.docx", "out.pdf")
	require.Error(t, err)
	require.True(t, f.last.quit.Load(), "a failing instance must be retired")
	require.Equal(t, 0, p.Size())
}

func TestOfficeConverter_ReleasesInstanceOnSuccess(t *testing.T) {
	f := &fakeFactory{}
	p := NewAutomationPool(f.new, 2)
	conv := NewOfficeConverter("office-document", []string{"docx"}, p, func() bool { return true })

	require.NoError(t, conv.Convert(context.Background(), "in.docx", "out.pdf"))
	require.Equal(t, "in.docx", f.last.opened)
	require.Equal(t, "out.pdf", f.last.saved)
	require.False(t, f.last.quit.Load())
	require.Equal(t, 1, p.Size())

	require.NoError(t, conv.Convert(context.Background(), "in2.docx", "out2.pdf"))
	require.Equal(t, int32(1), f.spawned.Load(), "a healthy instance is reused")
}

func TestSingleInstance_SerializesLeases(t *testing.T) {
	f := &fakeFactory{}
	s := NewSingleInstance(f.new, time.Minute)

	_, err := s.Lease(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Lease(ctx)
	require.True(t, apperr.IsKind(err, apperr.KindResourceExhausted))

	s.Release()

	inst, err := s.Lease(context.Background())
	require.NoError(t, err)
	require.NotNil(t, inst)
	require.Equal(t, int32(1), f.spawned.Load(), "release then re-lease reuses the instance")
	s.Release()
}

func TestSingleInstance_EvictsAfterIdleTTL(t *testing.T) {
	f := &fakeFactory{}
	s := NewSingleInstance(f.new, 30*time.Millisecond)

	_, err := s.Lease(context.Background())
	require.NoError(t, err)
	inst := f.last
	s.Release()

	require.Eventually(t, func() bool { return inst.quit.Load() }, time.Second, 5*time.Millisecond,
		"idle instance should be evicted")

	// A later lease spawns a fresh instance
	_, err = s.Lease(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), f.spawned.Load())
	s.Release()
}

func TestSingleInstance_ReLeaseCancelsIdleEviction(t *testing.T) {
	f := &fakeFactory{}
	s := NewSingleInstance(f.new, 50*time.Millisecond)

	_, err := s.Lease(context.Background())
	require.NoError(t, err)
	s.Release()

	// Re-lease well before the TTL fires and hold through it
	_, err = s.Lease(context.Background())
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	require.False(t, f.last.quit.Load(), "an in-use instance must not be evicted")
	require.Equal(t, int32(1), f.spawned.Load())
	s.Release()
}

func TestSingleInstance_RetireTearsDownImmediately(t *testing.T) {
	f := &fakeFactory{}
	s := NewSingleInstance(f.new, time.Minute)

	_, err := s.Lease(context.Background())
	require.NoError(t, err)
	inst := f.last

	s.Retire()
	require.True(t, inst.quit.Load())

	_, err = s.Lease(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), f.spawned.Load())
	s.Release()
}
