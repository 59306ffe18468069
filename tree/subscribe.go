package tree

import "fmt"

// Update is the new value of one variable.
type Update struct {
	Path    string
	Value   any
	Display string
}

// Batch is the set of updates produced by one set, read or poll cycle.
type Batch []Update

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	path  string
	batch func(Batch)
	one   func(Update)
}

// Subscribe registers fn to receive every batch. fn runs on the goroutine that produced the
// batch and must not block.
func (r *Root) Subscribe(fn func(Batch)) SubscriptionID {
	if fn == nil {
		return 0
	}
	id := SubscriptionID(r.subSeq.Add(1))
	r.subs.Store(id, &subscription{batch: fn})

	return id
}

// SubscribeVar registers fn to receive the updates of the variable at path.
func (r *Root) SubscribeVar(path string, fn func(Update)) (SubscriptionID, error) {
	if _, err := r.GetVariable(path); err != nil {
		return 0, err
	}
	if fn == nil {
		return 0, fmt.Errorf("subscriber of %s is nil", path)
	}

	id := SubscriptionID(r.subSeq.Add(1))
	r.subs.Store(id, &subscription{path: path, one: fn})

	return id, nil
}

// Unsubscribe removes a subscription. It returns false when id is unknown.
func (r *Root) Unsubscribe(id SubscriptionID) bool {
	_, ok := r.subs.LoadAndDelete(id)
	return ok
}

func (r *Root) publish(batch Batch) {
	if len(batch) == 0 {
		return
	}

	r.subs.Range(func(_ SubscriptionID, s *subscription) bool {
		if s.batch != nil {
			s.batch(batch)
			return true
		}
		for _, u := range batch {
			if u.Path == s.path {
				s.one(u)
			}
		}

		return true
	})
}
