package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gramforge/gramforge/pkg/analyzer/ngram"
	"github.com/gramforge/gramforge/pkg/compression"
	"github.com/gramforge/gramforge/pkg/config"
)

func newExtractor(t *testing.T, cfg config.AnalyzerConfig) *ngram.Extractor {
	t.Helper()
	extractor, err := ngram.NewExtractor(cfg)
	require.NoError(t, err)
	return extractor
}

func newCodec(t *testing.T, algorithm compression.Algorithm) *compression.Codec {
	t.Helper()
	codec, err := compression.NewCodec(algorithm, compression.Default)
	require.NoError(t, err)
	return codec
}
