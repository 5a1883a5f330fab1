package trie

// BoundedQueue是固定容量的先进先出队列。队列长度超过容量时，Put会移除并返回队头元素。
type BoundedQueue[T any] struct {
	queue    []T
	capacity int
}

// NewBoundedQueue创建容量为capacity的队列。
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	// 预留一个额外位置简化Put
	return &BoundedQueue[T]{queue: make([]T, 0, capacity+1), capacity: capacity}
}

// Put把item追加到队尾，队列溢出时返回被移出的队头。
func (q *BoundedQueue[T]) Put(item T) (T, bool) {
	q.queue = append(q.queue, item)
	if len(q.queue) > q.capacity {
		return q.Pop()
	}
	var zero T
	return zero, false
}

// Pop移除并返回队头。
func (q *BoundedQueue[T]) Pop() (T, bool) {
	var zero T
	if len(q.queue) == 0 {
		return zero, false
	}
	head := q.queue[0]
	q.queue[0] = zero
	q.queue = q.queue[1:]
	return head, true
}

// Clear清空队列。
func (q *BoundedQueue[T]) Clear() {
	q.queue = make([]T, 0, q.capacity+1)
}

func (q *BoundedQueue[T]) Len() int {
	return len(q.queue)
}
