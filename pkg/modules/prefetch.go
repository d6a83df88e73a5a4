package modules

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skua-js/skua/pkg/parser"
	"github.com/skua-js/skua/pkg/source"
)

type pending struct {
	specifier string
	from      string
}

// Prefetch resolves and parses the static import graph reachable from
// specifier ahead of linking. The graph is walked breadth first; each
// level is parsed concurrently by at most Workers goroutines. The first
// resolution or syntax error cancels the walk and is returned.
//
// Prefetch only fills the registry's caches. LoadModule still reports
// the same failures as script exceptions when the graph is loaded.
func (l *Loader) Prefetch(ctx context.Context, specifier, fromPath string) error {
	fromPath = l.referrerPath(fromPath)
	seen := make(map[string]bool)
	frontier := []pending{{specifier, fromPath}}

	for len(frontier) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.workers)

		var mu sync.Mutex
		var next []pending
		for _, p := range frontier {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				resolved, err := l.resolve(p.specifier, p.from)
				if err != nil {
					return err
				}
				if resolved.provider != nil {
					return nil
				}
				kind := KindFor(resolved.ResolvedPath, nil)
				mu.Lock()
				if seen[resolved.ResolvedPath] {
					mu.Unlock()
					return nil
				}
				seen[resolved.ResolvedPath] = true
				mu.Unlock()

				pr := l.parse(resolved, kind)
				if err := pr.Err(); err != nil {
					return err
				}
				l.count(func(s *LoaderStats) { s.Prefetched++ })

				mu.Lock()
				for _, req := range pr.Requests {
					next = append(next, pending{req, pr.Path})
				}
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		frontier = next
	}
	return nil
}

// parse returns the cached parse of a resolved module, parsing it first
// if needed. Safe for concurrent use.
func (l *Loader) parse(resolved *ResolvedModule, kind ModuleKind) *ParseResult {
	if pr := l.registry.Parsed(resolved.ResolvedPath); pr != nil && pr.Kind == kind {
		l.count(func(s *LoaderStats) { s.CacheHits++ })
		return pr
	}
	start := time.Now()
	src := source.NewSourceFile(resolved.ResolvedPath, resolved.ResolvedPath, resolved.Content)
	pr := &ParseResult{Path: resolved.ResolvedPath, Kind: kind, Source: src}
	if kind == KindScript {
		prog, errs := parser.ParseModule(src)
		pr.Program = prog
		pr.Errors = errs
		if len(errs) == 0 {
			pr.Requests = importRequests(prog)
		}
	}
	pr.ParseDuration = time.Since(start)
	l.count(func(s *LoaderStats) {
		s.Parsed++
		s.ParseTime += pr.ParseDuration
	})
	if kind != KindScript {
		return pr
	}
	return l.registry.SetParsed(pr)
}
