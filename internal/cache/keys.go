package cache

import (
	"fmt"

	"hedge-bot/internal/strategy"
)

// Fields lists every key the facade owns, per namespace.
var Fields = map[strategy.Namespace][]string{
	strategy.NamespaceCache: {
		strategy.FieldAlive,
		strategy.FieldOpenTime,
		strategy.FieldOpenPrice,
		strategy.FieldTrailSell,
		strategy.FieldTrailBuy,
		strategy.FieldExitPrice,
	},
	strategy.NamespaceControl: {
		strategy.FieldBalanceTrigger,
		strategy.FieldBalanceSlider,
	},
	strategy.NamespaceIndicator: {
		strategy.FieldActBalance,
		strategy.FieldShortPnL,
		strategy.FieldLongPnL,
	},
}

var namespaceOrder = []strategy.Namespace{
	strategy.NamespaceCache,
	strategy.NamespaceControl,
	strategy.NamespaceIndicator,
}

// Namespaces returns the namespaces in a stable order.
func Namespaces() []strategy.Namespace {
	return append([]strategy.Namespace(nil), namespaceOrder...)
}

// Key follows bot:{account}:{pair}:{namespace}:{field}.
func Key(account, pair string, ns strategy.Namespace, field string) string {
	return fmt.Sprintf("bot:%s:%s:%s:%s", account, pair, ns, field)
}
