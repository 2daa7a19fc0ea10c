package gpio

import "errors"

// ErrNoScript is returned by a FakeLevelReader with nothing scripted.
var ErrNoScript = errors.New("gpio: fake level reader has no script")

// LevelStep is one scripted Read result.
type LevelStep struct {
	Detected bool
	Err      error
}

// FakeLevelReader replays a script of level readings. When the script is
// exhausted the last step repeats, like a switch left where it is.
type FakeLevelReader struct {
	Steps  []LevelStep
	Reads  int
	Closed bool
}

// NewFakeLevelReader scripts one successful step per level.
func NewFakeLevelReader(levels ...bool) *FakeLevelReader {
	f := &FakeLevelReader{}
	for _, l := range levels {
		f.Steps = append(f.Steps, LevelStep{Detected: l})
	}
	return f
}

// Fail appends a step that returns err.
func (f *FakeLevelReader) Fail(err error) *FakeLevelReader {
	f.Steps = append(f.Steps, LevelStep{Err: err})
	return f
}

// Level appends a successful step.
func (f *FakeLevelReader) Level(detected bool) *FakeLevelReader {
	f.Steps = append(f.Steps, LevelStep{Detected: detected})
	return f
}

// Read returns the next scripted step.
func (f *FakeLevelReader) Read() (bool, error) {
	if len(f.Steps) == 0 {
		return false, ErrNoScript
	}
	i := f.Reads
	if i >= len(f.Steps) {
		i = len(f.Steps) - 1
	}
	f.Reads++
	step := f.Steps[i]
	if step.Err != nil {
		return false, step.Err
	}
	return step.Detected, nil
}

// Close marks the reader closed.
func (f *FakeLevelReader) Close() error {
	f.Closed = true
	return nil
}
