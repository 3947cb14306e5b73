package detection

import "sync"

// Mock is a Detector returning canned detections.
type Mock struct {
	mu     sync.Mutex
	faces  []Detection
	err    error
	calls  int
	closed bool
}

// NewMock returns a detector that finds the given faces.
func NewMock(faces ...Detection) *Mock {
	return &Mock{faces: faces}
}

// SetFaces changes the detections returned by later calls.
func (m *Mock) SetFaces(faces ...Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError makes later calls fail.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect implements Detector.
func (m *Mock) Detect(jpeg []byte) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return append([]Detection(nil), m.faces...), nil
}

// Close implements Detector.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many frames were inspected.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
