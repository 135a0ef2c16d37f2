// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package opcodes

import (
	"fmt"
	"sync"
)

// maxAliasHops bounds the length of an alias chain
const maxAliasHops = 1024

// maxDepth bounds how deeply nodes nest while decoding or encoding one value
const maxDepth = 1024

// resolver turns type names into concrete nodes, memoizing each chain
type resolver struct {
	typedef Typedef

	mu       sync.RWMutex
	resolved map[string]Node
}

func newResolver(typedef Typedef) *resolver {
	return &resolver{typedef: typedef, resolved: make(map[string]Node)}
}

// resolve follows the alias chain starting at name to a concrete node
func (r *resolver) resolve(name string) (Node, error) {
	r.mu.RLock()
	n, ok := r.resolved[name]
	r.mu.RUnlock()
	if ok {
		return n, nil
	}

	seen := make(map[string]struct{})
	current := name
	for hops := 0; hops < maxAliasHops; hops++ {
		if _, loop := seen[current]; loop {
			return nil, fmt.Errorf("%w: %q loops back to %q", ErrAliasLoop, name, current)
		}
		seen[current] = struct{}{}

		next, ok := r.typedef[current]
		if !ok {
			if current == name {
				return nil, fmt.Errorf("%w: %q", ErrUnresolvedAlias, name)
			}
			return nil, fmt.Errorf("%w: %q (via %q)", ErrUnresolvedAlias, current, name)
		}
		alias, isAlias := next.(Alias)
		if !isAlias {
			r.mu.Lock()
			r.resolved[name] = next
			r.mu.Unlock()
			return next, nil
		}
		current = alias.Name
	}
	return nil, fmt.Errorf("%w: %q exceeds %d hops, last alias %q", ErrAliasLoop, name, maxAliasHops, current)
}

// concrete returns n itself, or the node it names when n is an Alias
func (r *resolver) concrete(n Node) (Node, error) {
	if a, ok := n.(Alias); ok {
		return r.resolve(a.Name)
	}
	return n, nil
}

// check walks every node reachable from n, resolving aliases and validating
// primitive parameters. Named types are walked once so recursive types
// terminate.
func (r *resolver) check(n Node, walked map[string]struct{}) error {
	switch t := n.(type) {
	case nil:
		return fmt.Errorf("%w: missing type", ErrSchema)
	case Alias:
		if _, ok := walked[t.Name]; ok {
			return nil
		}
		walked[t.Name] = struct{}{}
		target, err := r.resolve(t.Name)
		if err != nil {
			return err
		}
		if err := r.check(target, walked); err != nil {
			return fmt.Errorf("type %q: %w", t.Name, err)
		}
		return nil
	case Bool, Value:
		return nil
	case Int:
		return checkInt(t)
	case String:
		if t.Length < 0 {
			return fmt.Errorf("%w: negative string length %d", ErrSchema, t.Length)
		}
		return nil
	case Switch:
		if len(t.Cases) == 0 {
			return fmt.Errorf("%w: switch without cases", ErrSchema)
		}
		for tag, c := range t.Cases {
			if err := r.check(c, walked); err != nil {
				return fmt.Errorf("switch case 0x%02X: %w", tag, err)
			}
		}
		return nil
	case Array:
		return r.check(t.Elem, walked)
	case Map:
		if err := r.check(t.Key, walked); err != nil {
			return fmt.Errorf("map key: %w", err)
		}
		return r.check(t.Elem, walked)
	case Struct:
		for _, f := range t.Fields {
			if f.Name == "" {
				return fmt.Errorf("%w: struct field without name", ErrSchema)
			}
			if err := r.check(f.Type, walked); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
		return nil
	case Tuple:
		for i, e := range t.Elems {
			if err := r.check(e, walked); err != nil {
				return fmt.Errorf("tuple element %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported node %T", ErrSchema, n)
	}
}

func checkInt(t Int) error {
	if t.Bytes < 1 || t.Bytes > 8 {
		return fmt.Errorf("%w: int width %d not in 1..8", ErrSchema, t.Bytes)
	}
	if t.Smart {
		if t.Bytes < 2 || t.Bytes%2 != 0 {
			return fmt.Errorf("%w: variable int width %d must be even", ErrSchema, t.Bytes)
		}
		if t.LittleEndian {
			return fmt.Errorf("%w: variable int must be big endian", ErrSchema)
		}
	}
	return nil
}
