package catalog

import (
	"time"

	"github.com/mnohosten/laura-db/pkg/replacer"
)

const (
	defaultFlushPeriod     = 500 * time.Millisecond
	defaultPoolSize        = 256
	defaultLRUK            = 2
	defaultReplacerVariant = replacer.VariantLRU
)
