package transportmgr

import "context"

// FakeOracle is an in-memory Oracle double for tests: verdicts are
// pushed directly via Push rather than decoded off D-Bus.
type FakeOracle struct {
	onChange func(QualifiedNetworks)
}

func NewFakeOracle() *FakeOracle {
	return &FakeOracle{}
}

func (f *FakeOracle) Subscribe(_ context.Context, onChange func(QualifiedNetworks)) error {
	f.onChange = onChange
	return nil
}

func (f *FakeOracle) Close() error { return nil }

// Push delivers a verdict as if it had arrived over the wire.
func (f *FakeOracle) Push(qn QualifiedNetworks) {
	if f.onChange != nil {
		f.onChange(qn)
	}
}
