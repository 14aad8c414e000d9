package detect

import "poolwatch/internal/models"

// ErrorWindow is a fixed-capacity ring of request outcomes.
type ErrorWindow struct {
	buf    []bool
	head   int // oldest sample
	size   int
	errors int
}

func NewErrorWindow(capacity int) *ErrorWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &ErrorWindow{buf: make([]bool, capacity)}
}

// Push appends one outcome, evicting the oldest when full.
func (w *ErrorWindow) Push(isError bool) {
	c := len(w.buf)
	if w.size < c {
		w.buf[(w.head+w.size)%c] = isError
		w.size++
	} else {
		if w.buf[w.head] {
			w.errors--
		}
		w.buf[w.head] = isError
		w.head = (w.head + 1) % c
	}
	if isError {
		w.errors++
	}
}

func (w *ErrorWindow) Len() int    { return w.size }
func (w *ErrorWindow) Cap() int    { return len(w.buf) }
func (w *ErrorWindow) Errors() int { return w.errors }
func (w *ErrorWindow) Full() bool  { return w.size == len(w.buf) }

// Rate is the error percentage over the samples currently held.
func (w *ErrorWindow) Rate() float64 {
	if w.size == 0 {
		return 0
	}
	return float64(w.errors) / float64(w.size) * 100
}

// Outcomes returns the held samples, oldest first.
func (w *ErrorWindow) Outcomes() []bool {
	out := make([]bool, 0, w.size)
	for i := 0; i < w.size; i++ {
		out = append(out, w.buf[(w.head+i)%len(w.buf)])
	}
	return out
}

// Resize changes the capacity, keeping the most recent samples that fit.
func (w *ErrorWindow) Resize(capacity int) {
	if capacity <= 0 || capacity == len(w.buf) {
		return
	}
	held := w.Outcomes()
	if len(held) > capacity {
		held = held[len(held)-capacity:]
	}
	w.buf = make([]bool, capacity)
	w.head, w.size, w.errors = 0, 0, 0
	for _, v := range held {
		w.Push(v)
	}
}

func (w *ErrorWindow) Reset() {
	for i := range w.buf {
		w.buf[i] = false
	}
	w.head, w.size, w.errors = 0, 0, 0
}

// Observe records the outcome of rec and reports an ErrorRateEvent when the
// window is full and its rate exceeds threshold. A partially filled window
// never fires.
func (w *ErrorWindow) Observe(rec models.RequestRecord, threshold float64) (models.ErrorRateEvent, bool) {
	w.Push(rec.IsServerError())
	if !w.Full() {
		return models.ErrorRateEvent{}, false
	}
	rate := w.Rate()
	if rate <= threshold {
		return models.ErrorRateEvent{}, false
	}
	return models.ErrorRateEvent{
		Rate:       rate,
		Threshold:  threshold,
		WindowSize: w.Cap(),
		ErrorCount: w.errors,
		At:         rec.TS,
	}, true
}
