package core

import "container/list"

// TickLevel holds the resting orders at one exact price in insertion order.
// The FIFO is the price-time-priority guarantee: earlier orders at a price
// always trade before later ones, and nothing ever re-sorts the queue.
type TickLevel struct {
	Price uint64

	queue *list.List // of *Order
	index map[uint64]*list.Element
}

// NewTickLevel creates an empty tick level for the given price.
func NewTickLevel(price uint64) *TickLevel {
	return &TickLevel{
		Price: price,
		queue: list.New(),
		index: make(map[uint64]*list.Element),
	}
}

// PushBack appends an order to the tail of the queue.
func (t *TickLevel) PushBack(o *Order) {
	t.index[o.ID] = t.queue.PushBack(o)
}

// Front returns the oldest resting order, or nil when the level is empty.
func (t *TickLevel) Front() *Order {
	e := t.queue.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Order)
}

// PopFront removes and returns the oldest resting order, or nil when the
// level is empty.
func (t *TickLevel) PopFront() *Order {
	e := t.queue.Front()
	if e == nil {
		return nil
	}
	t.queue.Remove(e)
	o := e.Value.(*Order)
	delete(t.index, o.ID)
	return o
}

// Remove deletes the order with the given id, preserving the relative order
// of the rest of the queue.
func (t *TickLevel) Remove(orderID uint64) (*Order, bool) {
	e, ok := t.index[orderID]
	if !ok {
		return nil, false
	}
	t.queue.Remove(e)
	delete(t.index, orderID)
	return e.Value.(*Order), true
}

// Get returns the resting order with the given id.
func (t *TickLevel) Get(orderID uint64) (*Order, bool) {
	e, ok := t.index[orderID]
	if !ok {
		return nil, false
	}
	return e.Value.(*Order), true
}

// Empty reports whether no orders rest at this level.
func (t *TickLevel) Empty() bool {
	return t.queue.Len() == 0
}

// Len returns the number of resting orders.
func (t *TickLevel) Len() int {
	return t.queue.Len()
}

// Orders returns the resting orders in FIFO order.
func (t *TickLevel) Orders() []*Order {
	out := make([]*Order, 0, t.queue.Len())
	for e := t.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Order))
	}
	return out
}
