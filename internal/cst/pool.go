package cst

import (
	"context"
	"sync"
)

// Parser construction crosses into C; a process-wide pool amortizes it
// across the patches of a run.
var parserPool = sync.Pool{
	New: func() interface{} { return NewParser() },
}

// WithParser runs f with a pooled parser.
func WithParser(f func(*Parser) error) error {
	p := parserPool.Get().(*Parser)
	defer parserPool.Put(p)
	return f(p)
}

// Parse parses src with a pooled parser.
func Parse(ctx context.Context, src []byte) (*Source, error) {
	var s *Source
	err := WithParser(func(p *Parser) error {
		var err error
		s, err = p.Parse(ctx, src)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
