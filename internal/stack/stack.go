package stack

// Stack is a generic LIFO container. It is not safe for concurrent use;
// callers own the synchronization.
type Stack[T any] struct {
	items []T
}

// New creates an empty stack.
func New[T any]() *Stack[T] {
	return &Stack[T]{}
}

// Len returns the number of items on the stack.
func (s *Stack[T]) Len() int {
	return len(s.items)
}

// Push places items on the stack in argument order, so the last argument
// is popped first.
func (s *Stack[T]) Push(items ...T) {
	s.items = append(s.items, items...)
}

// Pop removes and returns the top item. The second return value is false
// when the stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	n := len(s.items)
	if n == 0 {
		return zero, false
	}

	top := s.items[n-1]
	s.items[n-1] = zero // avoid memory leak
	s.items = s.items[:n-1]
	return top, true
}
