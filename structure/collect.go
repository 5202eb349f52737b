package structure

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// collect walks the slot graph reachable from args and records every
// distinct buffer and every pointer instance. Each instance is visited
// once, so cyclic graphs terminate.
func collect(args *Instance) *CallFrame {
	f := &CallFrame{Args: args}
	seen := make(map[*Instance]struct{})
	buffers := make(map[*Buffer]struct{})

	var walk func(i *Instance)
	walk = func(i *Instance) {
		if _, ok := seen[i]; ok {
			return
		}
		seen[i] = struct{}{}
		if _, ok := buffers[i.buffer]; !ok {
			buffers[i.buffer] = struct{}{}
			f.Buffers = append(f.Buffers, i.buffer)
		}
		if i.structure != nil && i.structure.kind.IsReference() {
			f.Pointers = append(f.Pointers, i)
		}
		keys := maps.Keys(i.slots)
		slices.Sort(keys)
		for _, k := range keys {
			if c := i.slots[k]; c != nil {
				walk(c)
			}
		}
	}
	walk(args)
	return f
}
