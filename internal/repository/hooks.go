package repository

import (
	"context"
	"time"

	"github.com/chronokeep/portal-gateway/pkg/log"
)

type queryTimingKey struct{}

// queryHooks satisfies sqlhooks.Hooks, logging every query and its
// elapsed time at debug level.
type queryHooks struct{}

func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql query %s %q", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		log.Debugf("sql query took %s", time.Since(begin))
	}
	return ctx, nil
}
