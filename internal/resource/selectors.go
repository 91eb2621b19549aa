package resource

// Items возвращает копию всех элементов.
func (s *Store[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]T{}, s.state.Items...)
}

// Main возвращает первый элемент, если он есть.
func (s *Store[T]) Main() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.state.Items) == 0 {
		return zero, false
	}
	return s.state.Items[0], true
}

// First возвращает не более n первых элементов.
func (s *Store[T]) First(n int) []T {
	return s.Range(0, n)
}

// Range возвращает элементы с индексами [from, to). Границы за пределами списка обрезаются.
func (s *Store[T]) Range(from, to int) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Slice(s.state.Items, from, to)
}

// Slice возвращает копию items[from:to] с обрезкой границ. Никогда не паникует.
func Slice[T any](items []T, from, to int) []T {
	if from < 0 {
		from = 0
	}
	if to > len(items) {
		to = len(items)
	}
	if from >= to {
		return []T{}
	}
	return append([]T{}, items[from:to]...)
}
