package changefeed

import (
	"context"

	"go.uber.org/zap"
)

// dispatch hands n to every handler of its table. Handler errors and panics
// are logged and never stop delivery to the remaining handlers.
func dispatch(ctx context.Context, registry *handlerRegistry, logger *zap.Logger, n Notification) {
	for _, h := range registry.get(n.Table) {
		if err := safeHandle(ctx, h, logger, n); err != nil {
			logger.Error("change handler failed",
				zap.String("table", n.Table),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}
}

func safeHandle(ctx context.Context, h Handler, logger *zap.Logger, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("change handler panicked",
				zap.String("table", n.Table),
				zap.Any("panic", r),
			)
		}
	}()
	return h.HandleChange(ctx, n)
}
