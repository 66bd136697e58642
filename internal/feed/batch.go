package feed

import "github.com/tolmv/elasticsearch/internal/domain"

// Batcher groups a product stream into fixed-size batches for amortized
// writes. Every full batch is handed to emit as soon as it fills; Flush hands
// over any remainder. Emitted slices are never reused, so emit may hold or
// process them concurrently.
type Batcher struct {
	size    int
	current []domain.Product
	emit    func([]domain.Product)
}

func NewBatcher(size int, emit func([]domain.Product)) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{
		size:    size,
		current: make([]domain.Product, 0, size),
		emit:    emit,
	}
}

// Add appends a product to the in-flight batch, emitting it when full.
func (b *Batcher) Add(product domain.Product) {
	b.current = append(b.current, product)
	if len(b.current) >= b.size {
		b.emit(b.current)
		b.current = make([]domain.Product, 0, b.size)
	}
}

// Flush emits the non-empty remainder at end of stream.
func (b *Batcher) Flush() {
	if len(b.current) == 0 {
		return
	}
	b.emit(b.current)
	b.current = make([]domain.Product, 0, b.size)
}
