package runtime

// DictValue is an insertion-ordered mapping with string keys.
type DictValue struct {
	keys    []string
	entries map[string]Value
}

func (*DictValue) Kind() Kind { return KindDict }

func NewDict() *DictValue {
	return &DictValue{entries: make(map[string]Value)}
}

func (d *DictValue) Len() int { return len(d.keys) }

func (d *DictValue) Get(key string) (Value, bool) {
	v, ok := d.entries[key]
	return v, ok
}

// Set inserts or replaces key, keeping the original position on replace.
func (d *DictValue) Set(key string, value Value) {
	if _, ok := d.entries[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.entries[key] = value
}

func (d *DictValue) Delete(key string) (Value, bool) {
	v, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	delete(d.entries, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (d *DictValue) Clear() {
	d.keys = nil
	d.entries = make(map[string]Value)
}

// Keys returns the keys in insertion order.
func (d *DictValue) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}
