// Package bytequeue provides the FIFO byte accumulator used for frame
// reassembly on both sides of a stream.
package bytequeue

// Queue buffers byte chunks in arrival order and hands them back in
// exact-size, all-or-nothing pieces.
//
// A Queue is not safe for concurrent use.
type Queue struct {
	chunks [][]byte
	size   int
}

func New() *Queue {
	return &Queue{}
}

// Put appends a copy of chunk and returns the new buffered size.
func (q *Queue) Put(chunk []byte) int {
	if len(chunk) == 0 {
		return q.size
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	q.chunks = append(q.chunks, c)
	q.size += len(c)
	return q.size
}

// Take removes exactly n bytes from the front of the queue. When fewer than
// n bytes are buffered it returns false and leaves the queue untouched.
func (q *Queue) Take(n int) ([]byte, bool) {
	if n < 0 || q.size < n {
		return nil, false
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		head := q.chunks[0]
		need := n - len(out)
		if len(head) > need {
			out = append(out, head[:need]...)
			q.chunks[0] = head[need:]
			break
		}
		out = append(out, head...)
		q.chunks[0] = nil
		q.chunks = q.chunks[1:]
	}
	q.size -= n
	if len(q.chunks) == 0 {
		q.chunks = nil
	}
	return out, true
}

// Size reports the number of buffered bytes.
func (q *Queue) Size() int {
	return q.size
}

// Reset drops every buffered byte.
func (q *Queue) Reset() {
	for i := range q.chunks {
		q.chunks[i] = nil
	}
	q.chunks = nil
	q.size = 0
}
