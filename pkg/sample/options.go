package sample

import log "github.com/rs/zerolog"

// RankResolver reports the MPI rank of the calling process, or
// wire.RankUnresolved before MPI_Init-equivalent setup has completed.
type RankResolver func() uint64

type Opt func(*TLSBlock)

// WithDebug enables the per-flush diagnostic trace, the Go analogue of
// CBTF_DEBUG_COLLECTOR.
func WithDebug(debug bool) Opt {
	return func(b *TLSBlock) {
		b.debug = debug
	}
}

// WithRankResolver installs the callback used to stamp header.Rank on
// flush. Omitting this leaves every flushed batch at wire.RankUnresolved.
func WithRankResolver(resolver RankResolver) Opt {
	return func(b *TLSBlock) {
		b.rankResolver = resolver
	}
}

// WithLogger installs a child logger; the default is a no-op logger.
func WithLogger(logger log.Logger) Opt {
	return func(b *TLSBlock) {
		b.logger = logger.With().Str("component", "sample").Logger()
	}
}
